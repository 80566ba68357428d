package pushsubscription

import "context"

type Repository interface {
	// Save creates or replaces the subscription with the same ID.
	Save(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
}
