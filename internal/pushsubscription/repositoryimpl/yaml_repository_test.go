package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitech/infinitask/internal/pushsubscription"
	"github.com/infinitech/infinitask/pkg/cerr"
	"github.com/infinitech/infinitask/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorageOnFs(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	sub := &pushsubscription.Subscription{
		ID:        pushsubscription.IDForEndpoint("https://push.example/1"),
		Endpoint:  "https://push.example/1",
		P256dhKey: "p1",
		AuthKey:   "a1",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, sub))

	replaced := *sub
	replaced.AuthKey = "a2"
	require.NoError(t, repo.Save(ctx, &replaced))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a2", all[0].AuthKey)

	got, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/1", got.Endpoint)

	require.NoError(t, repo.Delete(ctx, sub.ID))
	_, err = repo.Get(ctx, sub.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.True(t, cerr.IsCode(repo.Delete(ctx, sub.ID), cerr.NotFound))
	assert.True(t, cerr.IsCode(repo.Save(ctx, &pushsubscription.Subscription{}), cerr.InvalidArgument))
}
