package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/browserflow/workflow"
)

const (
	recordingsDir    = "recordings/"
	recordingSuffix  = ".waw.json"
	runsDir          = "runs/"
	runSuffix        = ".json"
	maxNameLength    = 200
	forbiddenNameSet = `/\:*?"<>|`
)

// ValidateName 校验录制名，名称直接映射为文件名
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength || name == "." || name == ".." ||
		strings.ContainsAny(name, forbiddenNameSet) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: recording name %q", ErrInvalidInput, name)
	}
	return nil
}

// RecordingRepository 录制文件仓库
type RecordingRepository struct {
	store Store
	now   func() time.Time
}

// NewRecordingRepository creates a repository over store.
func NewRecordingRepository(store Store) *RecordingRepository {
	return &RecordingRepository{store: store, now: time.Now}
}

func recordingPath(name string) string { return recordingsDir + name + recordingSuffix }

// Save validates rec and writes it. The create date of an existing
// recording with the same name is preserved.
func (r *RecordingRepository) Save(ctx context.Context, rec workflow.Recording) (workflow.Recording, error) {
	if err := ValidateName(rec.Meta.Name); err != nil {
		return rec, err
	}
	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := r.now().UTC()
	rec.Meta.UpdateDate = now
	if existing, err := r.Get(ctx, rec.Meta.Name); err == nil {
		rec.Meta.CreateDate = existing.Meta.CreateDate
	} else if rec.Meta.CreateDate.IsZero() {
		rec.Meta.CreateDate = now
	}
	rec.Meta.Pairs = len(rec.Recording.Workflow)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rec, fmt.Errorf("failed to marshal recording: %w", err)
	}
	if err := r.store.Write(ctx, recordingPath(rec.Meta.Name), data); err != nil {
		return rec, err
	}
	return rec, nil
}

// Get loads the recording called name.
func (r *RecordingRepository) Get(ctx context.Context, name string) (workflow.Recording, error) {
	var rec workflow.Recording
	if err := ValidateName(name); err != nil {
		return rec, err
	}
	data, err := r.store.Read(ctx, recordingPath(name))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode recording %q: %w", name, err)
	}
	return rec, nil
}

// List returns the metadata of every stored recording, sorted by name.
func (r *RecordingRepository) List(ctx context.Context) ([]workflow.RecordingMeta, error) {
	paths, err := r.store.List(ctx, recordingsDir)
	if err != nil {
		return nil, err
	}
	metas := make([]workflow.RecordingMeta, 0, len(paths))
	for _, p := range paths {
		name, ok := strings.CutSuffix(strings.TrimPrefix(p, recordingsDir), recordingSuffix)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		rec, err := r.Get(ctx, name)
		if err != nil {
			continue
		}
		metas = append(metas, rec.Meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Delete removes the recording called name.
func (r *RecordingRepository) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.store.Delete(ctx, recordingPath(name))
}
