package repositoryimpl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/cerr"
	"github.com/infinitech/infinitask/pkg/storage"
)

const snapshotsPrefix = "snapshots"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

// Owner keys are session tokens, so only their digest is used as a file name.
func path(ownerKey string) string {
	sum := sha256.Sum256([]byte(ownerKey))
	return fmt.Sprintf("%s/%s.yaml", snapshotsPrefix, hex.EncodeToString(sum[:12]))
}

func (r *YAMLRepository) Save(ctx context.Context, s *task.Snapshot) error {
	if s.OwnerKey == "" {
		return cerr.NewError(cerr.InvalidArgument, "owner key is required", nil).AddViolation("owner_key", "must not be empty")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal snapshot: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.OwnerKey), data); err != nil {
		return cerr.WrapStorageWriteError("snapshot", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, ownerKey string) (*task.Snapshot, error) {
	data, err := r.storage.Read(ctx, path(ownerKey))
	if err != nil {
		return nil, cerr.WrapStorageReadError("snapshot", err)
	}
	var s task.Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal snapshot: %w", err))
	}
	if s.OwnerKey != ownerKey {
		return nil, cerr.NewError(cerr.NotFound, "snapshot not found", nil)
	}
	return &s, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, ownerKey string) error {
	if err := r.storage.Delete(ctx, path(ownerKey)); err != nil {
		return cerr.WrapStorageDeleteError("snapshot", err)
	}
	return nil
}
