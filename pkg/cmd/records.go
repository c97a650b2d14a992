package cmd

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pulseops/automation/pkg/protocol"
)

// noopRecordStore stands in when no business record backend is bound. It
// logs the requested mutation and acknowledges it, so record actions stay
// usable in development deployments.
type noopRecordStore struct {
	logger *slog.Logger
}

func NewNoopRecordStore(logger *slog.Logger) protocol.RecordStore {
	return &noopRecordStore{logger: logger.With("module", "record_store")}
}

func (s *noopRecordStore) CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error) {
	id := "rec-" + uuid.New().String()[:8]
	s.logger.InfoContext(ctx, "Create record", "entity", entity, "record_id", id, "fields", len(fields))

	return id, nil
}

func (s *noopRecordStore) UpdateRecord(ctx context.Context, entity, recordID string, fields map[string]any) error {
	s.logger.InfoContext(ctx, "Update record", "entity", entity, "record_id", recordID, "fields", len(fields))

	return nil
}
