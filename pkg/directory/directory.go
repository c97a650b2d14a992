// Package directory is a file-backed contact directory. It serves small
// deployments and tests; production setups implement the resolver contract
// against the ERP's contact service instead.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pulseops/automation/pkg/protocol"
)

// Static resolves groups from a fixed membership map and filters with
// "key=value" equality over contact attributes.
type Static struct {
	contacts []protocol.Contact
	groups   map[string][]string // group name to contact IDs
	mu       sync.RWMutex
}

func NewStatic(contacts []protocol.Contact, groups map[string][]string) *Static {
	if groups == nil {
		groups = make(map[string][]string)
	}

	return &Static{contacts: contacts, groups: groups}
}

type directoryFile struct {
	Contacts []protocol.Contact  `json:"contacts"`
	Groups   map[string][]string `json:"groups"`
}

// Load reads a directory definition from a JSON file.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}

	var file directoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}

	return NewStatic(file.Contacts, file.Groups), nil
}

func (s *Static) ResolveGroup(_ context.Context, name string) ([]protocol.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.groups[name]
	if !ok {
		return nil, fmt.Errorf("unknown group %q", name)
	}

	byID := make(map[string]protocol.Contact, len(s.contacts))
	for _, contact := range s.contacts {
		byID[contact.ID] = contact
	}

	members := make([]protocol.Contact, 0, len(ids))

	for _, id := range ids {
		contact, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("group %q references unknown contact %q", name, id)
		}

		members = append(members, contact)
	}

	return members, nil
}

// ResolveFilter matches contacts whose attributes satisfy every "key=value"
// clause of the comma-separated spec.
func (s *Static) ResolveFilter(_ context.Context, spec string) ([]protocol.Contact, error) {
	clauses, err := parseFilter(spec)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []protocol.Contact

	for _, contact := range s.contacts {
		if matchesAll(contact, clauses) {
			matched = append(matched, contact)
		}
	}

	return matched, nil
}

func parseFilter(spec string) (map[string]string, error) {
	clauses := make(map[string]string)

	for _, clause := range strings.Split(spec, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		key, value, found := strings.Cut(clause, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid filter clause %q", clause)
		}

		clauses[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if len(clauses) == 0 {
		return nil, fmt.Errorf("empty filter spec %q", spec)
	}

	return clauses, nil
}

func matchesAll(contact protocol.Contact, clauses map[string]string) bool {
	for key, want := range clauses {
		if contact.Attributes[key] != want {
			return false
		}
	}

	return true
}
