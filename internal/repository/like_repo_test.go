package repository

import (
	"context"
	"testing"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/store"

	apperr "engagehub/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLikeFixture(t *testing.T) LikeRepository {
	t.Helper()
	return NewLikeRepository(store.NewMemoryStore(), nil, time.Second)
}

func edge(subjectType, targetID, userID string) *model.LikeEdge {
	return &model.LikeEdge{
		SubjectType: subjectType,
		TargetID:    targetID,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateEdgeIsConditional(t *testing.T) {
	repo := newLikeFixture(t)
	ctx := context.Background()

	first := edge("posts", "post-1", "user-1")
	require.NoError(t, repo.CreateEdge(ctx, first))
	assert.Equal(t, model.LikeEdgeID("posts", "post-1", "user-1"), first.ID)

	err := repo.CreateEdge(ctx, edge("posts", "post-1", "user-1"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// a different user on the same target is a different edge
	require.NoError(t, repo.CreateEdge(ctx, edge("posts", "post-1", "user-2")))
}

func TestDeleteEdgeIsConditional(t *testing.T) {
	repo := newLikeFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateEdge(ctx, edge("posts", "post-1", "user-1")))
	require.NoError(t, repo.DeleteEdge(ctx, "posts", "post-1", "user-1"))

	err := repo.DeleteEdge(ctx, "posts", "post-1", "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExistsForUser(t *testing.T) {
	repo := newLikeFixture(t)
	ctx := context.Background()

	exists, err := repo.ExistsForUser(ctx, "posts", "post-1", "user-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.CreateEdge(ctx, edge("posts", "post-1", "user-1")))

	exists, err = repo.ExistsForUser(ctx, "posts", "post-1", "user-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCountByTargetScopesBySubjectType(t *testing.T) {
	repo := newLikeFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateEdge(ctx, edge("posts", "post-1", "user-1")))
	require.NoError(t, repo.CreateEdge(ctx, edge("posts", "post-1", "user-2")))
	require.NoError(t, repo.CreateEdge(ctx, edge("comments", "post-1", "user-1")))

	count, err := repo.CountByTarget(ctx, "posts", "post-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountByTarget(ctx, "comments", "post-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLikedSetForUser(t *testing.T) {
	repo := newLikeFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateEdge(ctx, edge("comments", "item-1", "user-1")))
	require.NoError(t, repo.CreateEdge(ctx, edge("comments", "item-3", "user-1")))
	require.NoError(t, repo.CreateEdge(ctx, edge("comments", "item-2", "user-2")))

	liked, err := repo.LikedSetForUser(ctx, "comments", []string{"item-1", "item-2", "item-3"}, "user-1")
	require.NoError(t, err)
	assert.True(t, liked["item-1"])
	assert.False(t, liked["item-2"])
	assert.True(t, liked["item-3"])

	liked, err = repo.LikedSetForUser(ctx, "comments", nil, "user-1")
	require.NoError(t, err)
	assert.Empty(t, liked)

	liked, err = repo.LikedSetForUser(ctx, "comments", []string{"item-1"}, "")
	require.NoError(t, err)
	assert.Empty(t, liked)
}
