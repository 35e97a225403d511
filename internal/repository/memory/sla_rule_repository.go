package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

type ruleKey struct {
	organizationID string
	priority       domain.TicketPriority
}

// SLARuleRepository is an in-memory repository.SLARuleRepository with a
// secondary index enforcing one rule per (organization, priority).
type SLARuleRepository struct {
	mu    sync.RWMutex
	rules map[string]domain.SLARule
	index map[ruleKey]string
}

// NewSLARuleRepository creates an empty store.
func NewSLARuleRepository() *SLARuleRepository {
	return &SLARuleRepository{
		rules: make(map[string]domain.SLARule),
		index: make(map[ruleKey]string),
	}
}

var _ repository.SLARuleRepository = (*SLARuleRepository)(nil)

func (r *SLARuleRepository) Create(_ context.Context, rule *domain.SLARule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ruleKey{rule.OrganizationID, rule.Priority}
	if _, taken := r.index[key]; taken {
		return repository.ErrDuplicate
	}
	if _, exists := r.rules[rule.ID]; exists {
		return repository.ErrDuplicate
	}
	r.rules[rule.ID] = *rule
	r.index[key] = rule.ID
	return nil
}

func (r *SLARuleRepository) Update(_ context.Context, rule *domain.SLARule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rules[rule.ID]
	if !ok {
		return repository.ErrNotFound
	}
	newKey := ruleKey{rule.OrganizationID, rule.Priority}
	if owner, taken := r.index[newKey]; taken && owner != rule.ID {
		return repository.ErrDuplicate
	}
	delete(r.index, ruleKey{existing.OrganizationID, existing.Priority})
	r.index[newKey] = rule.ID
	r.rules[rule.ID] = *rule
	return nil
}

func (r *SLARuleRepository) GetByID(_ context.Context, id string) (*domain.SLARule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rule, nil
}

func (r *SLARuleRepository) FindByOrgAndPriority(_ context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[ruleKey{organizationID, priority}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rule := r.rules[id]
	return &rule, nil
}

func (r *SLARuleRepository) ListByOrganization(_ context.Context, organizationID string) ([]domain.SLARule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.SLARule
	for _, rule := range r.rules {
		if rule.OrganizationID == organizationID {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result, nil
}

func (r *SLARuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.rules, id)
	delete(r.index, ruleKey{rule.OrganizationID, rule.Priority})
	return nil
}
