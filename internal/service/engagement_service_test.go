package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/repository"
	"engagehub/internal/store"

	apperr "engagehub/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngagementFixture(t *testing.T) (*store.MemoryStore, EngagementService, ThreadService, model.TargetRef) {
	t.Helper()
	st := store.NewMemoryStore()
	threadRepo := repository.NewThreadRepository(st, nil, time.Second)
	likeRepo := repository.NewLikeRepository(st, nil, time.Second)
	engagement := NewEngagementService(likeRepo, threadRepo, nil, nil, 0)
	threads := NewThreadService(threadRepo, likeRepo, nil)

	target := model.TargetRef{Kind: model.KindPost, ID: "post-1"}
	seedTarget(t, st, target)
	return st, engagement, threads, target
}

func storedCounter(t *testing.T, st store.DocumentStore, collection, id, field string) int64 {
	t.Helper()
	doc, err := st.Get(context.Background(), collection, id)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	value, _ := fields[field].(float64)
	return int64(value)
}

func TestToggleLikeOnContent(t *testing.T) {
	st, engagement, _, target := newEngagementFixture(t)
	ctx := context.Background()
	subject := model.LikeSubject{Kind: target.Kind, Scope: model.ScopeContent}

	result, err := engagement.ToggleLike(ctx, subject, target.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, result.IsLiked)
	assert.Equal(t, int64(1), result.LikeCount)
	assert.Equal(t, int64(1), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "like_count"))

	liked, err := engagement.HasUserLiked(ctx, subject, target.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, liked)

	count, err := engagement.GetLikeCount(ctx, subject, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// toggling again restores the prior state exactly
	result, err = engagement.ToggleLike(ctx, subject, target.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, result.IsLiked)
	assert.Equal(t, int64(0), result.LikeCount)
	assert.Equal(t, int64(0), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "like_count"))

	liked, err = engagement.HasUserLiked(ctx, subject, target.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestToggleLikeOnThreadItem(t *testing.T) {
	st, engagement, threads, target := newEngagementFixture(t)
	ctx := context.Background()

	item, err := threads.Create(ctx, target, "author-1", CreateThreadItemRequest{Body: textBody("like me")})
	require.NoError(t, err)

	subject := model.LikeSubject{Kind: target.Kind, Scope: model.ScopeThread}
	result, err := engagement.ToggleLike(ctx, subject, item.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, result.IsLiked)
	assert.Equal(t, int64(1), result.LikeCount)
	assert.Equal(t, int64(1), storedCounter(t, st, target.Kind.ThreadCollection(), item.ID, "like_count"))

	// the content object's own like counter is untouched
	assert.Equal(t, int64(0), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "like_count"))
}

func TestToggleLikeValidatesSubject(t *testing.T) {
	_, engagement, _, target := newEngagementFixture(t)
	ctx := context.Background()

	_, err := engagement.ToggleLike(ctx, model.LikeSubject{Kind: "movie", Scope: model.ScopeContent}, target.ID, "user-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = engagement.ToggleLike(ctx, model.LikeSubject{Kind: target.Kind, Scope: "page"}, target.ID, "user-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = engagement.ToggleLike(ctx, model.LikeSubject{Kind: target.Kind, Scope: model.ScopeContent}, target.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestToggleLikeMissingTarget(t *testing.T) {
	_, engagement, _, target := newEngagementFixture(t)
	ctx := context.Background()

	_, err := engagement.ToggleLike(ctx, model.LikeSubject{Kind: target.Kind, Scope: model.ScopeContent}, "missing", "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = engagement.ToggleLike(ctx, model.LikeSubject{Kind: target.Kind, Scope: model.ScopeThread}, "missing", "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestToggleLikeDeletedThreadItem(t *testing.T) {
	_, engagement, threads, target := newEngagementFixture(t)
	ctx := context.Background()

	item, err := threads.Create(ctx, target, "author-1", CreateThreadItemRequest{Body: textBody("gone")})
	require.NoError(t, err)
	require.NoError(t, threads.SoftDelete(ctx, target.Kind, item.ID, "author-1"))

	_, err = engagement.ToggleLike(ctx, model.LikeSubject{Kind: target.Kind, Scope: model.ScopeThread}, item.ID, "user-1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyDeleted)
}

func TestConcurrentLikesFromDistinctUsers(t *testing.T) {
	st, engagement, _, target := newEngagementFixture(t)
	ctx := context.Background()
	subject := model.LikeSubject{Kind: target.Kind, Scope: model.ScopeContent}

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := "user-" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			_, err := engagement.ToggleLike(ctx, subject, target.ID, userID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(users), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "like_count"))

	count, err := engagement.GetLikeCount(ctx, subject, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(users), count)
}

func TestRepeatedTogglesSettleAtZero(t *testing.T) {
	st, engagement, _, target := newEngagementFixture(t)
	ctx := context.Background()
	subject := model.LikeSubject{Kind: target.Kind, Scope: model.ScopeContent}

	for i := 0; i < 6; i++ {
		_, err := engagement.ToggleLike(ctx, subject, target.ID, "user-1")
		require.NoError(t, err)
	}

	liked, err := engagement.HasUserLiked(ctx, subject, target.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "like_count"))
}

func TestIncrementView(t *testing.T) {
	st, engagement, _, target := newEngagementFixture(t)

	engagement.IncrementView(target, "viewer-1")
	engagement.IncrementView(target, "")

	require.Eventually(t, func() bool {
		doc, err := st.Get(context.Background(), target.Kind.TargetCollection(), target.ID)
		if err != nil {
			return false
		}
		var fields map[string]any
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return false
		}
		count, _ := fields["view_count"].(float64)
		return count == 2
	}, time.Second, 5*time.Millisecond)

	// unknown kinds are dropped silently
	engagement.IncrementView(model.TargetRef{Kind: "movie", ID: "m-1"}, "viewer-1")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), storedCounter(t, st, target.Kind.TargetCollection(), target.ID, "view_count"))
}
