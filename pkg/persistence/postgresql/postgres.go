// Package postgresql provides PostgreSQL persistence for the automation core.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	ruleRepo      *RuleRepository
	messageRepo   *MessageRepository
}

// NewPersistence connects, runs migrations and returns the store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		ruleRepo:      NewRuleRepository(database, logger),
		messageRepo:   NewMessageRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) DueWorkflows(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	return p.workflowRepo.Due(ctx, now)
}

func (p *Persistence) ActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Action, error) {
	return p.workflowRepo.ActionsByWorkflow(ctx, workflowID)
}

func (p *Persistence) SaveAction(ctx context.Context, action *models.Action) error {
	return p.workflowRepo.SaveAction(ctx, action)
}

func (p *Persistence) DeleteAction(ctx context.Context, id string) error {
	return p.workflowRepo.DeleteAction(ctx, id)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return p.executionRepo.Save(ctx, execution)
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID)
}

func (p *Persistence) DueExecutions(ctx context.Context, now time.Time) ([]*models.Execution, error) {
	return p.executionRepo.Due(ctx, now)
}

func (p *Persistence) ActionExecutionsByExecution(ctx context.Context, executionID string) ([]*models.ActionExecution, error) {
	return p.executionRepo.ActionExecutionsByExecution(ctx, executionID)
}

func (p *Persistence) SaveActionExecution(ctx context.Context, actionExecution *models.ActionExecution) error {
	return p.executionRepo.SaveActionExecution(ctx, actionExecution)
}

func (p *Persistence) Rules(ctx context.Context) ([]*models.Rule, error) {
	return p.ruleRepo.GetAll(ctx)
}

func (p *Persistence) RuleByID(ctx context.Context, id string) (*models.Rule, error) {
	return p.ruleRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveRule(ctx context.Context, rule *models.Rule) error {
	return p.ruleRepo.Save(ctx, rule)
}

func (p *Persistence) ActiveRules(ctx context.Context) ([]*models.Rule, error) {
	return p.ruleRepo.Active(ctx)
}

func (p *Persistence) Messages(ctx context.Context) ([]*models.ScheduledMessage, error) {
	return p.messageRepo.GetAll(ctx)
}

func (p *Persistence) MessageByID(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	return p.messageRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveMessage(ctx context.Context, message *models.ScheduledMessage) error {
	return p.messageRepo.Save(ctx, message)
}

func (p *Persistence) DueMessages(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	return p.messageRepo.Due(ctx, now)
}

func (p *Persistence) DeliveriesByMessage(ctx context.Context, messageID string) ([]*models.MessageDelivery, error) {
	return p.messageRepo.DeliveriesByMessage(ctx, messageID)
}

func (p *Persistence) SaveDelivery(ctx context.Context, delivery *models.MessageDelivery) error {
	return p.messageRepo.SaveDelivery(ctx, delivery)
}

func (p *Persistence) DueDeliveries(ctx context.Context, now time.Time) ([]*models.MessageDelivery, error) {
	return p.messageRepo.DueDeliveries(ctx, now)
}

// marshalJSONB encodes v for a nullable JSONB column. Nil stays NULL.
func marshalJSONB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb value: %w", err)
	}

	return data, nil
}

// unmarshalJSONB decodes a nullable JSONB column into dst. NULL is a no-op.
func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode jsonb value: %w", err)
	}

	return nil
}
