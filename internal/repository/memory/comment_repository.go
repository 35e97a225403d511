package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// CommentRepository is an in-memory repository.CommentRepository.
type CommentRepository struct {
	mu       sync.RWMutex
	comments map[string][]domain.TicketComment
}

// NewCommentRepository creates an empty store.
func NewCommentRepository() *CommentRepository {
	return &CommentRepository{comments: make(map[string][]domain.TicketComment)}
}

var _ repository.CommentRepository = (*CommentRepository)(nil)

func (r *CommentRepository) Create(_ context.Context, comment *domain.TicketComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[comment.TicketID] = append(r.comments[comment.TicketID], *comment)
	return nil
}

func (r *CommentRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := append([]domain.TicketComment(nil), r.comments[ticketID]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
