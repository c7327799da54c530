package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const tempSuffix = ".tmp"

// FileStore 基于本地目录的存储，适合单节点部署
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore 创建文件存储，baseDir 不存在时自动创建
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base dir is required", ErrInvalidInput)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) resolve(p string) (string, string, error) {
	key, err := CleanPath(p)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

func (s *FileStore) Read(ctx context.Context, p string) ([]byte, error) {
	key, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Write 原子写: 写入临时文件后重命名
func (s *FileStore) Write(ctx context.Context, p string, data []byte) error {
	_, full, err := s.resolve(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(full)+".*"+tempSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, p string) error {
	key, full, err := s.resolve(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), tempSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, full)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Close 关闭存储
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 检查目录可访问
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}
