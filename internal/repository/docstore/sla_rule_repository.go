package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

type ruleDoc struct {
	ID                   string    `firestore:"id"`
	OrganizationID       string    `firestore:"organization_id"`
	Priority             string    `firestore:"priority"`
	FirstResponseMinutes int       `firestore:"first_response_minutes"`
	ResolutionMinutes    int       `firestore:"resolution_minutes"`
	CreatedAt            time.Time `firestore:"created_at"`
	UpdatedAt            time.Time `firestore:"updated_at"`
}

// SLARuleRepository keys each rule document by organization and priority,
// so the document store itself rejects a second rule for the same pair.
type SLARuleRepository struct {
	client *firestore.Client
}

// NewSLARuleRepository builds the Firestore rule store.
func NewSLARuleRepository(client *firestore.Client) *SLARuleRepository {
	return &SLARuleRepository{client: client}
}

var _ repository.SLARuleRepository = (*SLARuleRepository)(nil)

func ruleDocID(organizationID string, priority domain.TicketPriority) string {
	return organizationID + "_" + string(priority)
}

func (r *SLARuleRepository) rules() *firestore.CollectionRef {
	return r.client.Collection(rulesCollection)
}

func (r *SLARuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	_, err := r.rules().Doc(ruleDocID(rule.OrganizationID, rule.Priority)).Create(ctx, toRuleDoc(rule))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("create sla rule: %w", err)
	}
	return nil
}

// Update rewrites the rule in place, or moves it to a new document when the
// priority or organization changes.
func (r *SLARuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := tx.Documents(r.rules().Where("id", "==", rule.ID).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return repository.ErrNotFound
		}
		oldRef := current[0].Ref
		newRef := r.rules().Doc(ruleDocID(rule.OrganizationID, rule.Priority))

		if newRef.ID != oldRef.ID {
			occupant, err := tx.Get(newRef)
			switch {
			case err == nil && occupant.Exists():
				return repository.ErrDuplicate
			case err != nil && status.Code(err) != codes.NotFound:
				return err
			}
			if err := tx.Delete(oldRef); err != nil {
				return err
			}
			return tx.Create(newRef, toRuleDoc(rule))
		}
		return tx.Set(newRef, toRuleDoc(rule))
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		if status.Code(err) == codes.AlreadyExists {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("update sla rule: %w", err)
	}
	return nil
}

func (r *SLARuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	rules, err := r.collect(r.rules().Where("id", "==", id).Limit(1).Documents(ctx))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, repository.ErrNotFound
	}
	return &rules[0], nil
}

func (r *SLARuleRepository) FindByOrgAndPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error) {
	snap, err := r.rules().Doc(ruleDocID(organizationID, priority)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get sla rule: %w", err)
	}
	var doc ruleDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode sla rule %s: %w", snap.Ref.ID, err)
	}
	rule := fromRuleDoc(doc)
	return &rule, nil
}

func (r *SLARuleRepository) ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error) {
	rules, err := r.collect(r.rules().Where("organization_id", "==", organizationID).Documents(ctx))
	if err != nil {
		return nil, err
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return rules, nil
}

func (r *SLARuleRepository) Delete(ctx context.Context, id string) error {
	docs, err := r.rules().Where("id", "==", id).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("find sla rule: %w", err)
	}
	if len(docs) == 0 {
		return repository.ErrNotFound
	}
	if _, err := docs[0].Ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete sla rule: %w", err)
	}
	return nil
}

func (r *SLARuleRepository) collect(iter *firestore.DocumentIterator) ([]domain.SLARule, error) {
	defer iter.Stop()
	var rules []domain.SLARule
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate sla rules: %w", err)
		}
		var doc ruleDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sla rule %s: %w", snap.Ref.ID, err)
		}
		rules = append(rules, fromRuleDoc(doc))
	}
	return rules, nil
}

func toRuleDoc(rule *domain.SLARule) ruleDoc {
	return ruleDoc{
		ID:                   rule.ID,
		OrganizationID:       rule.OrganizationID,
		Priority:             string(rule.Priority),
		FirstResponseMinutes: rule.FirstResponseMinutes,
		ResolutionMinutes:    rule.ResolutionMinutes,
		CreatedAt:            rule.CreatedAt.UTC(),
		UpdatedAt:            rule.UpdatedAt.UTC(),
	}
}

func fromRuleDoc(doc ruleDoc) domain.SLARule {
	return domain.SLARule{
		ID:                   doc.ID,
		OrganizationID:       doc.OrganizationID,
		Priority:             domain.TicketPriority(doc.Priority),
		FirstResponseMinutes: doc.FirstResponseMinutes,
		ResolutionMinutes:    doc.ResolutionMinutes,
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}
}
