package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

// RuleRepository handles rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

const ruleColumns = `
	id
  , name
  , condition
  , workflow_id
  , priority
  , active
  , valid_from
  , valid_until
  , execution_count
  , execution_limit
  , created_at
  , updated_at
`

func (r *RuleRepository) scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule          models.Rule
		conditionJSON []byte
		validFrom     sql.NullTime
		validUntil    sql.NullTime
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&conditionJSON,
		&rule.WorkflowID,
		&rule.Priority,
		&rule.Active,
		&validFrom,
		&validUntil,
		&rule.ExecutionCount,
		&rule.ExecutionLimit,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(conditionJSON, &rule.Condition); err != nil {
		return nil, err
	}

	if validFrom.Valid {
		rule.ValidFrom = &validFrom.Time
	}

	if validUntil.Valid {
		rule.ValidUntil = &validUntil.Time
	}

	return &rule, nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	rules := make([]*models.Rule, 0)

	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func (r *RuleRepository) GetAll(ctx context.Context) ([]*models.Rule, error) {
	return r.queryRules(ctx, "SELECT "+ruleColumns+" FROM rules ORDER BY priority DESC, created_at")
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.Rule, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM rules WHERE id = $1", id)

	rule, err := r.scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("RuleByID", "rule", id, persistence.ErrRuleNotFound)
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

// Active returns active rules in descending priority order.
func (r *RuleRepository) Active(ctx context.Context) ([]*models.Rule, error) {
	return r.queryRules(ctx,
		"SELECT "+ruleColumns+" FROM rules WHERE active = true ORDER BY priority DESC, created_at")
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.Rule) error {
	conditionJSON, err := marshalJSONB(rule.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode rule condition: %w", err)
	}

	query := `
		INSERT INTO rules (
			id, name, condition, workflow_id, priority, active,
			valid_from, valid_until, execution_count, execution_limit,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			condition = EXCLUDED.condition,
			workflow_id = EXCLUDED.workflow_id,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			execution_count = EXCLUDED.execution_count,
			execution_limit = EXCLUDED.execution_limit,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		conditionJSON,
		rule.WorkflowID,
		rule.Priority,
		rule.Active,
		rule.ValidFrom,
		rule.ValidUntil,
		rule.ExecutionCount,
		rule.ExecutionLimit,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveRule", "rule", rule.ID, err)
	}

	return nil
}
