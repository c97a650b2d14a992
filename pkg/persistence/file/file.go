// Package file provides file-based persistence for local development and
// tests. Each entity is one JSON document under a per-kind directory; the
// "find due" queries filter in memory, which is fine at this scale.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

const (
	dirWorkflows        = "workflows"
	dirActions          = "actions"
	dirExecutions       = "executions"
	dirActionExecutions = "action_executions"
	dirRules            = "rules"
	dirMessages         = "messages"
	dirDeliveries       = "deliveries"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates the store rooted at root, accepting a file:// URL
// or a plain path.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{
		dirWorkflows, dirActions, dirExecutions,
		dirActionExecutions, dirRules, dirMessages, dirDeliveries,
	} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func write(p *Persistence, dir, id string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", dir, id, err)
	}

	return os.WriteFile(filepath.Join(p.root, dir, id+".json"), data, 0o644)
}

func read[T any](p *Persistence, dir, id string, notFound error) (*T, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(p.root, dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", dir, id, err)
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", dir, id, err)
	}

	return &entity, nil
}

func readAll[T any](p *Persistence, dir string) ([]*T, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(p.root, dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entities := make([]*T, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.root, dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		var entity T
		if err := json.Unmarshal(data, &entity); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entry.Name(), err)
		}

		entities = append(entities, &entity)
	}

	return entities, nil
}

func remove(p *Persistence, dir, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(filepath.Join(p.root, dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// Workflows

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	return readAll[models.Workflow](p, dirWorkflows)
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	return read[models.Workflow](p, dirWorkflows, id, persistence.ErrWorkflowNotFound)
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	return write(p, dirWorkflows, workflow.ID, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	actions, err := p.ActionsByWorkflow(ctx, id)
	if err != nil {
		return err
	}

	for _, action := range actions {
		if err := remove(p, dirActions, action.ID); err != nil {
			return err
		}
	}

	return remove(p, dirWorkflows, id)
}

func (p *Persistence) DueWorkflows(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	workflows, err := p.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Workflow, 0)

	for _, w := range workflows {
		if !w.Scheduled() || w.Status != models.WorkflowStatusActive {
			continue
		}

		if w.NextExecution == nil || !w.NextExecution.After(now) {
			due = append(due, w)
		}
	}

	return due, nil
}

// Actions

func (p *Persistence) ActionsByWorkflow(_ context.Context, workflowID string) ([]*models.Action, error) {
	all, err := readAll[models.Action](p, dirActions)
	if err != nil {
		return nil, err
	}

	actions := make([]*models.Action, 0)

	for _, a := range all {
		if a.WorkflowID == workflowID {
			actions = append(actions, a)
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].SequenceOrder < actions[j].SequenceOrder
	})

	return actions, nil
}

func (p *Persistence) SaveAction(_ context.Context, action *models.Action) error {
	return write(p, dirActions, action.ID, action)
}

func (p *Persistence) DeleteAction(_ context.Context, id string) error {
	return remove(p, dirActions, id)
}

// Executions

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	return read[models.Execution](p, dirExecutions, id, persistence.ErrExecutionNotFound)
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	return write(p, dirExecutions, execution.ID, execution)
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	all, err := readAll[models.Execution](p, dirExecutions)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, e := range all {
		if e.WorkflowID == workflowID {
			executions = append(executions, e)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

func (p *Persistence) DueExecutions(_ context.Context, now time.Time) ([]*models.Execution, error) {
	all, err := readAll[models.Execution](p, dirExecutions)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Execution, 0)

	for _, e := range all {
		if e.Status == models.ExecutionPending && e.ResumeAt != nil && !e.ResumeAt.After(now) {
			due = append(due, e)
		}
	}

	return due, nil
}

// Action executions

func (p *Persistence) ActionExecutionsByExecution(_ context.Context, executionID string) ([]*models.ActionExecution, error) {
	all, err := readAll[models.ActionExecution](p, dirActionExecutions)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ActionExecution, 0)

	for _, ae := range all {
		if ae.ExecutionID == executionID {
			records = append(records, ae)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

func (p *Persistence) SaveActionExecution(_ context.Context, actionExecution *models.ActionExecution) error {
	return write(p, dirActionExecutions, actionExecution.ID, actionExecution)
}

// Rules

func (p *Persistence) Rules(_ context.Context) ([]*models.Rule, error) {
	return readAll[models.Rule](p, dirRules)
}

func (p *Persistence) RuleByID(_ context.Context, id string) (*models.Rule, error) {
	return read[models.Rule](p, dirRules, id, persistence.ErrRuleNotFound)
}

func (p *Persistence) SaveRule(_ context.Context, rule *models.Rule) error {
	return write(p, dirRules, rule.ID, rule)
}

func (p *Persistence) ActiveRules(ctx context.Context) ([]*models.Rule, error) {
	all, err := p.Rules(ctx)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.Rule, 0)

	for _, r := range all {
		if r.Active {
			rules = append(rules, r)
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	return rules, nil
}

// Scheduled messages

func (p *Persistence) Messages(_ context.Context) ([]*models.ScheduledMessage, error) {
	return readAll[models.ScheduledMessage](p, dirMessages)
}

func (p *Persistence) MessageByID(_ context.Context, id string) (*models.ScheduledMessage, error) {
	return read[models.ScheduledMessage](p, dirMessages, id, persistence.ErrMessageNotFound)
}

func (p *Persistence) SaveMessage(_ context.Context, message *models.ScheduledMessage) error {
	return write(p, dirMessages, message.ID, message)
}

func (p *Persistence) DueMessages(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	all, err := p.Messages(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.ScheduledMessage, 0)

	for _, m := range all {
		if m.Status != models.MessagePending {
			continue
		}

		if m.NextSend != nil && !m.NextSend.After(now) {
			due = append(due, m)
		}
	}

	return due, nil
}

// Deliveries

func (p *Persistence) DeliveriesByMessage(_ context.Context, messageID string) ([]*models.MessageDelivery, error) {
	all, err := readAll[models.MessageDelivery](p, dirDeliveries)
	if err != nil {
		return nil, err
	}

	deliveries := make([]*models.MessageDelivery, 0)

	for _, d := range all {
		if d.MessageID == messageID {
			deliveries = append(deliveries, d)
		}
	}

	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].Recipient < deliveries[j].Recipient
	})

	return deliveries, nil
}

func (p *Persistence) SaveDelivery(_ context.Context, delivery *models.MessageDelivery) error {
	return write(p, dirDeliveries, delivery.ID, delivery)
}

func (p *Persistence) DueDeliveries(_ context.Context, now time.Time) ([]*models.MessageDelivery, error) {
	all, err := readAll[models.MessageDelivery](p, dirDeliveries)
	if err != nil {
		return nil, err
	}

	due := make([]*models.MessageDelivery, 0)

	for _, d := range all {
		if d.Status == models.DeliveryPending && d.NextRetry != nil && !d.NextRetry.After(now) {
			due = append(due, d)
		}
	}

	return due, nil
}
