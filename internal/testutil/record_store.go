// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// RecordStore is an in-memory core.RecordStore. Func fields, when set,
// replace the default behavior so tests can inject failures.
type RecordStore struct {
	mu       sync.Mutex
	nextID   int64
	Sources  map[int64]*models.Source
	Mappings map[string]models.TokenMapping
	Statuses []models.ProgressEvent

	UpdateStatusFunc    func(ctx context.Context, id int64, status models.SourceStatus, stage models.Stage, progress int, message string) error
	PutTokenMappingFunc func(ctx context.Context, m models.TokenMapping) error
}

var _ core.RecordStore = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{
		Sources:  make(map[int64]*models.Source),
		Mappings: make(map[string]models.TokenMapping),
	}
}

// Add inserts a copy of src, assigning an id when it has none.
func (s *RecordStore) Add(src models.Source) *models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == 0 {
		s.nextID++
		src.ID = s.nextID
	} else if src.ID > s.nextID {
		s.nextID = src.ID
	}
	if src.Status == "" {
		src.Status = models.StatusQueued
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	cp := src
	s.Sources[cp.ID] = &cp
	return &cp
}

func (s *RecordStore) Source(id int64) models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.Sources[id]; ok {
		return *src
	}
	return models.Source{}
}

func (s *RecordStore) CreateSource(_ context.Context, src *models.Source) error {
	created := s.Add(*src)
	src.ID = created.ID
	return nil
}

func (s *RecordStore) GetSource(_ context.Context, id int64) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.Sources[id]
	if !ok {
		return nil, nil
	}
	cp := *src
	return &cp, nil
}

func (s *RecordStore) FindSourceByMetadataToken(_ context.Context, token string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.Sources {
		for _, key := range []string{"uuid", "token", "upload_id", "file_id"} {
			if v, ok := src.Metadata[key].(string); ok && v == token {
				cp := *src
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (s *RecordStore) SearchSourcesByText(_ context.Context, needle string, limit int) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Source
	for _, src := range s.Sources {
		meta, _ := json.Marshal(src.Metadata)
		hay := src.Name + " " + src.Description + " " + string(meta)
		if strings.Contains(strings.ToLower(hay), strings.ToLower(needle)) {
			out = append(out, *src)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *RecordStore) GetTokenMapping(_ context.Context, token string) (*models.TokenMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Mappings[token]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *RecordStore) PutTokenMapping(ctx context.Context, m models.TokenMapping) error {
	if s.PutTokenMappingFunc != nil {
		return s.PutTokenMappingFunc(ctx, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Mappings[m.Token]; !ok {
		s.Mappings[m.Token] = m
	}
	return nil
}

func (s *RecordStore) UpdateStatus(ctx context.Context, id int64, status models.SourceStatus, stage models.Stage, progress int, message string) error {
	if s.UpdateStatusFunc != nil {
		return s.UpdateStatusFunc(ctx, id, status, stage, progress, message)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statuses = append(s.Statuses, models.ProgressEvent{ID: id, Status: status, Stage: stage, Progress: progress, Message: message})
	src, ok := s.Sources[id]
	if !ok {
		return core.ErrSourceNotFound
	}
	src.Status, src.Stage, src.ProgressPercent = status, stage, progress
	if status == models.StatusError {
		src.LastError = message
	}
	src.UpdatedAt = time.Now()
	return nil
}

func (s *RecordStore) UpdateMetrics(_ context.Context, id int64, m models.SourceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.Sources[id]
	if !ok {
		return core.ErrSourceNotFound
	}
	src.Metrics = m
	return nil
}

func (s *RecordStore) MergeMetadata(_ context.Context, id int64, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.Sources[id]
	if !ok {
		return core.ErrSourceNotFound
	}
	if src.Metadata == nil {
		src.Metadata = map[string]any{}
	}
	for k, v := range patch {
		src.Metadata[k] = v
	}
	return nil
}

func (s *RecordStore) MarkStaleProcessing(_ context.Context, olderThan time.Duration) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var ids []int64
	for id, src := range s.Sources {
		if src.Status == models.StatusProcessing && src.UpdatedAt.Before(cutoff) {
			src.Status = models.StatusError
			src.Stage = models.StageFailed
			src.LastError = "abandoned"
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *RecordStore) Close() error { return nil }
