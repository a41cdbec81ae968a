package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

func TestCacheRepositoryNilClientGetMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)

	var dest []string
	err := repo.Get(context.Background(), "timetable:user:u-1", &dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryInProcessGuards(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	fresh, err := repo.SetNX(ctx, "notify:unresolved:l-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	again, err := repo.SetNX(ctx, "notify:unresolved:l-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, repo.Delete(ctx, "notify:unresolved:l-1"))

	rearmed, err := repo.SetNX(ctx, "notify:unresolved:l-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, rearmed)
}

func TestCacheRepositoryGuardExpiry(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	fresh, err := repo.SetNX(ctx, "notify:auth_failed:u-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fresh)

	time.Sleep(20 * time.Millisecond)

	expired, err := repo.SetNX(ctx, "notify:auth_failed:u-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, expired, "an expired guard no longer suppresses")
}
