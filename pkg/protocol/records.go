package protocol

import "context"

// RecordStore is the external persistence collaborator the record actions
// delegate to. The core never touches the business schema directly.
type RecordStore interface {
	CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error)
	UpdateRecord(ctx context.Context, entity, recordID string, fields map[string]any) error
}
