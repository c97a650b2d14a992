package protocol

import "context"

// Contact is one resolved recipient.
type Contact struct {
	ID         string            `json:"id"`
	Address    string            `json:"address"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DirectoryResolver expands named groups and dynamic filter specifications
// into concrete contacts. Implementations live outside the core.
type DirectoryResolver interface {
	ResolveGroup(ctx context.Context, name string) ([]Contact, error)
	ResolveFilter(ctx context.Context, spec string) ([]Contact, error)
}
