package storage

import (
	"context"
	"time"

	"github.com/BaSui01/browserflow/internal/metrics"
)

// instrumentedStore 为每次操作记录耗时与错误
type instrumentedStore struct {
	Store
	backend string
	metrics *metrics.Collector
}

// Instrument wraps s so every operation is recorded under backend.
// A nil collector returns s unchanged.
func Instrument(s Store, backend string, collector *metrics.Collector) Store {
	if collector == nil {
		return s
	}
	return &instrumentedStore{Store: s, backend: backend, metrics: collector}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.RecordStorageOperation(s.backend, op, time.Since(start), err)
}

func (s *instrumentedStore) Read(ctx context.Context, path string) (data []byte, err error) {
	defer func(start time.Time) { s.observe("read", start, err) }(time.Now())
	return s.Store.Read(ctx, path)
}

func (s *instrumentedStore) Write(ctx context.Context, path string, data []byte) (err error) {
	defer func(start time.Time) { s.observe("write", start, err) }(time.Now())
	return s.Store.Write(ctx, path, data)
}

func (s *instrumentedStore) Delete(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.Store.Delete(ctx, path)
}

func (s *instrumentedStore) List(ctx context.Context, prefix string) (paths []string, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())
	return s.Store.List(ctx, prefix)
}
