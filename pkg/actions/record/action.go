// Package record implements the create_record and update_record actions by
// delegating to the external record store collaborator.
package record

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

// Factory builds record mutation handlers. The same implementation serves
// create_record and update_record.
type Factory struct {
	actionType models.ActionType
	store      protocol.RecordStore
}

func NewCreateFactory(store protocol.RecordStore) *Factory {
	return &Factory{actionType: models.ActionCreateRecord, store: store}
}

func NewUpdateFactory(store protocol.RecordStore) *Factory {
	return &Factory{actionType: models.ActionUpdateRecord, store: store}
}

func (f *Factory) Type() models.ActionType {
	return f.actionType
}

func (f *Factory) Schema() map[string]any {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Business entity name in the external schema",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Field values to write",
			},
		},
		"required": []any{"entity", "fields"},
	}

	if f.actionType == models.ActionUpdateRecord {
		props := schema["properties"].(map[string]any)
		props["record_id"] = map[string]any{
			"type":        "string",
			"minLength":   1,
			"description": "Identifier of the record to update",
		}
		schema["required"] = []any{"entity", "record_id", "fields"}
	}

	return schema
}

func (f *Factory) Create(params models.Params) (protocol.ActionHandler, error) {
	fields, ok := params["fields"]
	if !ok || fields.Kind != models.KindMap {
		return nil, protocol.Validation("fields must be an object", nil)
	}

	return &Action{
		actionType: f.actionType,
		entity:     params.String("entity", ""),
		recordID:   params.String("record_id", ""),
		fields:     fields.Any().(map[string]any),
		store:      f.store,
	}, nil
}

// Action performs one record mutation through the collaborator.
type Action struct {
	actionType models.ActionType
	entity     string
	recordID   string
	fields     map[string]any
	store      protocol.RecordStore
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", a.actionType, "entity", a.entity)

	if a.actionType == models.ActionCreateRecord {
		id, err := a.store.CreateRecord(ctx, a.entity, a.fields)
		if err != nil {
			return nil, wrap(err, "record create failed")
		}

		logger.InfoContext(ctx, "Record created", "record_id", id)

		return map[string]any{"entity": a.entity, "record_id": id}, nil
	}

	if err := a.store.UpdateRecord(ctx, a.entity, a.recordID, a.fields); err != nil {
		return nil, wrap(err, "record update failed")
	}

	logger.InfoContext(ctx, "Record updated", "record_id", a.recordID)

	return map[string]any{"entity": a.entity, "record_id": a.recordID}, nil
}

func wrap(err error, message string) error {
	var failure *protocol.Failure
	if errors.As(err, &failure) {
		return err
	}

	return protocol.Transient(message, err)
}
