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

type commentDoc struct {
	ID         string    `firestore:"id"`
	TicketID   string    `firestore:"ticket_id"`
	AuthorID   string    `firestore:"author_id"`
	AuthorRole string    `firestore:"author_role"`
	Visibility string    `firestore:"visibility"`
	Body       string    `firestore:"body"`
	CreatedAt  time.Time `firestore:"created_at"`
}

// CommentRepository stores comments in a flat collection indexed by ticket id.
type CommentRepository struct {
	client *firestore.Client
}

func NewCommentRepository(client *firestore.Client) *CommentRepository {
	return &CommentRepository{client: client}
}

var _ repository.CommentRepository = (*CommentRepository)(nil)

func (r *CommentRepository) Create(ctx context.Context, comment *domain.TicketComment) error {
	doc := commentDoc{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		AuthorID:   comment.AuthorID,
		AuthorRole: string(comment.AuthorRole),
		Visibility: string(comment.Visibility),
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt.UTC(),
	}
	if _, err := r.client.Collection(commentsCollection).Doc(comment.ID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	iter := r.client.Collection(commentsCollection).Where("ticket_id", "==", ticketID).Documents(ctx)
	defer iter.Stop()

	var comments []domain.TicketComment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate comments: %w", err)
		}
		var doc commentDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode comment %s: %w", snap.Ref.ID, err)
		}
		comments = append(comments, domain.TicketComment{
			ID:         doc.ID,
			TicketID:   doc.TicketID,
			AuthorID:   doc.AuthorID,
			AuthorRole: domain.ActorRole(doc.AuthorRole),
			Visibility: domain.CommentVisibility(doc.Visibility),
			Body:       doc.Body,
			CreatedAt:  doc.CreatedAt.UTC(),
		})
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}
