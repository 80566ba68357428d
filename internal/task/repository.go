package task

import (
	"context"
	"time"
)

// Snapshot is the last task list fetched for one owner key.
type Snapshot struct {
	OwnerKey  string    `yaml:"owner_key"`
	FetchedAt time.Time `yaml:"fetched_at"`
	Tasks     []Task    `yaml:"tasks"`
}

type SnapshotRepository interface {
	Save(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, ownerKey string) (*Snapshot, error)
	Delete(ctx context.Context, ownerKey string) error
}
