package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

const slaRuleColumns = `id, organization_id, priority, first_response_minutes, resolution_minutes, created_at, updated_at`

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds the Postgres rule store. The
// (organization_id, priority) unique index backs the one-rule invariant.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

func (r *slaRuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        INSERT INTO sla_rules (id, organization_id, priority, first_response_minutes, resolution_minutes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		rule.ID,
		rule.OrganizationID,
		rule.Priority,
		rule.FirstResponseMinutes,
		rule.ResolutionMinutes,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert sla rule: %w", err)
	}
	return nil
}

func (r *slaRuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        UPDATE sla_rules SET organization_id=$1, priority=$2, first_response_minutes=$3, resolution_minutes=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		rule.OrganizationID,
		rule.Priority,
		rule.FirstResponseMinutes,
		rule.ResolutionMinutes,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update sla rule: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaRuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *slaRuleRepository) FindByOrgAndPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE organization_id=$1 AND priority=$2`
	return r.fetchSingle(ctx, query, organizationID, priority)
}

func (r *slaRuleRepository) ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE organization_id=$1 ORDER BY priority ASC`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		rule, err := scanSLARule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *slaRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_rules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete sla rule: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaRuleRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SLARule, error) {
	rule, err := scanSLARule(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sla rule: %w", err)
	}
	return rule, nil
}

func scanSLARule(row pgx.Row) (*domain.SLARule, error) {
	var rule domain.SLARule
	if err := row.Scan(
		&rule.ID,
		&rule.OrganizationID,
		&rule.Priority,
		&rule.FirstResponseMinutes,
		&rule.ResolutionMinutes,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}
