package main

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/store"
)

// memStore is an in-memory store.Store for command tests.
type memStore struct {
	records   map[string]*model.ApplicationRecord
	history   map[string][]model.StatusHistoryEntry
	processed map[string]string
	pingErr   error
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[string]*model.ApplicationRecord),
		history:   make(map[string][]model.StatusHistoryEntry),
		processed: make(map[string]string),
	}
}

func (m *memStore) CreateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *memStore) UpdateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	if _, ok := m.records[record.ID]; !ok {
		return eris.Errorf("record %s not found", record.ID)
	}
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *memStore) GetRecord(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, eris.Errorf("record %s not found", id)
	}
	clone := *record
	return &clone, nil
}

func (m *memStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]model.ApplicationRecord, error) {
	var out []model.ApplicationRecord
	for _, record := range m.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Company != "" && !strings.Contains(strings.ToLower(record.Company), strings.ToLower(filter.Company)) {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) ReplaceStatusHistory(ctx context.Context, recordID string, entries []model.StatusHistoryEntry) error {
	m.history[recordID] = append([]model.StatusHistoryEntry(nil), entries...)
	return nil
}

func (m *memStore) GetStatusHistory(ctx context.Context, recordID string) ([]model.StatusHistoryEntry, error) {
	return append([]model.StatusHistoryEntry(nil), m.history[recordID]...), nil
}

func (m *memStore) MarkProcessed(ctx context.Context, sourceID, recordID string) error {
	m.processed[sourceID] = recordID
	return nil
}

func (m *memStore) IsProcessed(ctx context.Context, sourceID string) (bool, error) {
	_, ok := m.processed[sourceID]
	return ok, nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error    { return m.pingErr }
func (m *memStore) Close() error                      { return nil }
