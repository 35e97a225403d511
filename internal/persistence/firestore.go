package persistence

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/spec-kit/helpdesk-sla/internal/config"
)

// Firestore wraps the Cloud Firestore client used by the document store backend.
type Firestore struct {
	Client *firestore.Client
}

// NewFirestore opens a client for the configured project. A credentials file
// is optional; without one the default application credentials apply.
func NewFirestore(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	logger.Info("connected to firestore", zap.String("project_id", cfg.ProjectID))
	return &Firestore{Client: client}, nil
}

// Ping issues a cheap read to confirm the project is reachable.
func (f *Firestore) Ping(ctx context.Context) error {
	if f == nil || f.Client == nil {
		return errors.New("firestore client not configured")
	}
	iter := f.Client.Collections(ctx)
	_, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Close releases the client.
func (f *Firestore) Close() {
	if f != nil && f.Client != nil {
		_ = f.Client.Close()
	}
}
