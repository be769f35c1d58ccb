package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/repository"
	"engagehub/internal/store"

	apperr "engagehub/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThreadFixture(t *testing.T) (*store.MemoryStore, ThreadService, model.TargetRef) {
	t.Helper()
	st := store.NewMemoryStore()
	threadRepo := repository.NewThreadRepository(st, nil, time.Second)
	likeRepo := repository.NewLikeRepository(st, nil, time.Second)
	svc := NewThreadService(threadRepo, likeRepo, nil)

	target := model.TargetRef{Kind: model.KindPost, ID: "post-1"}
	seedTarget(t, st, target)
	return st, svc, target
}

func seedTarget(t *testing.T, st store.DocumentStore, target model.TargetRef) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":            target.ID,
		"comment_count": 0,
		"like_count":    0,
		"view_count":    0,
		"created_at":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.NoError(t, st.Insert(context.Background(), target.Kind.TargetCollection(), target.ID, data))
}

func textBody(text string) []model.ContentBlock {
	return []model.ContentBlock{{Type: model.BlockText, Text: text}}
}

func targetCounter(t *testing.T, st store.DocumentStore, target model.TargetRef, field string) int64 {
	t.Helper()
	doc, err := st.Get(context.Background(), target.Kind.TargetCollection(), target.ID)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	value, _ := fields[field].(float64)
	return int64(value)
}

// createItem inserts through the service with a tiny pause so successive
// items get strictly increasing timestamps.
func createItem(t *testing.T, svc ThreadService, target model.TargetRef, authorID, text string, parentID *string) *model.ThreadItem {
	t.Helper()
	item, err := svc.Create(context.Background(), target, authorID, CreateThreadItemRequest{
		Body:     textBody(text),
		ParentID: parentID,
	})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	return item
}

func TestCreateTopLevelItem(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	item := createItem(t, svc, target, "user-1", "first", nil)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 0, item.Depth)
	assert.Nil(t, item.ParentID)
	assert.Equal(t, int64(0), item.ReplyCount)
	assert.Equal(t, int64(0), item.LikeCount)
	assert.False(t, item.Deleted)

	result, err := svc.List(ctx, target, 0, DefaultPageSize, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, item.ID, result.Items[0].ID)
	assert.Equal(t, int64(0), result.Items[0].ReplyCount)

	assert.Equal(t, int64(1), targetCounter(t, st, target, "comment_count"))
}

func TestCreateValidatesInput(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateThreadItemRequest
	}{
		{"empty body", CreateThreadItemRequest{}},
		{"unknown block type", CreateThreadItemRequest{Body: []model.ContentBlock{{Type: "gif", Text: "x"}}}},
		{"media without url", CreateThreadItemRequest{Body: []model.ContentBlock{
			{Type: model.BlockText, Text: "x"},
			{Type: model.BlockImage},
		}}},
		{"no text block", CreateThreadItemRequest{Body: []model.ContentBlock{
			{Type: model.BlockImage, URL: "https://cdn.example.com/a.png"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, target, "user-1", tc.req)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}

	_, err := svc.Create(ctx, target, "", CreateThreadItemRequest{Body: textBody("x")})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(ctx, model.TargetRef{Kind: "movie", ID: "m-1"}, "user-1", CreateThreadItemRequest{Body: textBody("x")})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// nothing above reached the store
	count, err := st.Count(ctx, target.Kind.ThreadCollection(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, int64(0), targetCounter(t, st, target, "comment_count"))
}

func TestCreateRequiresExistingTarget(t *testing.T) {
	_, svc, _ := newThreadFixture(t)

	_, err := svc.Create(context.Background(), model.TargetRef{Kind: model.KindPost, ID: "missing"},
		"user-1", CreateThreadItemRequest{Body: textBody("hello")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateReplyBumpsBothCounters(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	reply := createItem(t, svc, target, "user-2", "reply", &parent.ID)

	assert.Equal(t, 1, reply.Depth)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)

	stored, err := svc.Get(ctx, target.Kind, parent.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ReplyCount)
	require.Len(t, stored.Replies, 1)
	assert.Equal(t, reply.ID, stored.Replies[0].ID)

	assert.Equal(t, int64(2), targetCounter(t, st, target, "comment_count"))
}

func TestCreateReplyToReplyExceedsDepth(t *testing.T) {
	_, svc, target := newThreadFixture(t)

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	reply := createItem(t, svc, target, "user-1", "reply", &parent.ID)

	_, err := svc.Create(context.Background(), target, "user-1", CreateThreadItemRequest{
		Body:     textBody("reply to reply"),
		ParentID: &reply.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrDepthExceeded)
}

func TestCreateReplyParentChecks(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	t.Run("parent not found", func(t *testing.T) {
		missing := "no-such-item"
		_, err := svc.Create(ctx, target, "user-1", CreateThreadItemRequest{
			Body:     textBody("reply"),
			ParentID: &missing,
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidParent)
	})

	t.Run("deleted parent", func(t *testing.T) {
		parent := createItem(t, svc, target, "user-1", "doomed", nil)
		require.NoError(t, svc.SoftDelete(ctx, target.Kind, parent.ID, "user-1"))

		_, err := svc.Create(ctx, target, "user-2", CreateThreadItemRequest{
			Body:     textBody("reply"),
			ParentID: &parent.ID,
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidParent)
	})

	t.Run("parent on another target", func(t *testing.T) {
		other := model.TargetRef{Kind: model.KindPost, ID: "post-2"}
		seedTarget(t, st, other)
		parent := createItem(t, svc, other, "user-1", "elsewhere", nil)

		_, err := svc.Create(ctx, target, "user-1", CreateThreadItemRequest{
			Body:     textBody("reply"),
			ParentID: &parent.ID,
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidParent)
	})
}

func TestReplyCountMatchesLiveReplies(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	const replies = 5
	for i := 0; i < replies; i++ {
		createItem(t, svc, target, "user-2", "reply", &parent.ID)
	}

	for _, size := range []int{1, 2, DefaultPageSize} {
		result, err := svc.List(ctx, target, 0, size, "")
		require.NoError(t, err)
		require.NotEmpty(t, result.Items)
		assert.Equal(t, int64(replies), result.Items[0].ReplyCount)
		assert.Len(t, result.Items[0].Replies, replies)
	}
}

func TestListPagination(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parents := make([]*model.ThreadItem, 0, 3)
	for i := 0; i < 3; i++ {
		parent := createItem(t, svc, target, "user-1", "parent", nil)
		createItem(t, svc, target, "user-2", "reply", &parent.ID)
		parents = append(parents, parent)
	}

	first, err := svc.List(ctx, target, 0, 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, parents[0].ID, first.Items[0].ID)
	assert.Equal(t, parents[1].ID, first.Items[1].ID)
	for _, item := range first.Items {
		assert.Len(t, item.Replies, 1)
	}
	// flat interleaves each parent with its replies
	require.Len(t, first.Flat, 4)
	assert.Equal(t, parents[0].ID, first.Flat[0].ID)
	assert.Equal(t, 1, first.Flat[1].Depth)
	assert.Equal(t, parents[1].ID, first.Flat[2].ID)

	assert.Equal(t, int64(3), first.Pagination.TotalElements)
	assert.Equal(t, 2, first.Pagination.TotalPages)
	assert.True(t, first.Pagination.HasNext)
	assert.False(t, first.Pagination.HasPrevious)
	assert.True(t, first.Pagination.IsFirst)
	assert.False(t, first.Pagination.IsLast)

	second, err := svc.List(ctx, target, 1, 2, "")
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, parents[2].ID, second.Items[0].ID)
	assert.False(t, second.Pagination.HasNext)
	assert.True(t, second.Pagination.HasPrevious)
	assert.True(t, second.Pagination.IsLast)
}

func TestListRejectsInvalidPageRequest(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	_, err := svc.List(ctx, target, -1, 10, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidPageRequest)

	_, err = svc.List(ctx, target, 0, 0, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidPageRequest)
}

func TestListSelfHealsReplyCount(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	createItem(t, svc, target, "user-2", "reply", &parent.ID)

	// introduce counter drift behind the service's back
	require.NoError(t, st.UpdateFields(ctx, target.Kind.ThreadCollection(), parent.ID,
		map[string]any{"reply_count": 99}))

	result, err := svc.List(ctx, target, 0, DefaultPageSize, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(1), result.Items[0].ReplyCount)
}

func TestListAnnotatesViewerLikes(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	liked := createItem(t, svc, target, "user-1", "liked", nil)
	createItem(t, svc, target, "user-1", "not liked", nil)

	likeRepo := repository.NewLikeRepository(st, nil, time.Second)
	require.NoError(t, likeRepo.CreateEdge(ctx, &model.LikeEdge{
		SubjectType: target.Kind.ThreadCollection(),
		TargetID:    liked.ID,
		UserID:      "viewer-1",
		CreatedAt:   time.Now().UTC(),
	}))

	result, err := svc.List(ctx, target, 0, DefaultPageSize, "viewer-1")
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].LikedByViewer)
	assert.False(t, result.Items[1].LikedByViewer)

	anon, err := svc.List(ctx, target, 0, DefaultPageSize, "")
	require.NoError(t, err)
	assert.False(t, anon.Items[0].LikedByViewer)
}

func TestUpdateReplacesBody(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	item := createItem(t, svc, target, "user-1", "before", nil)

	updated, err := svc.Update(ctx, target.Kind, item.ID, "user-1", UpdateThreadItemRequest{
		Body: []model.ContentBlock{
			{Type: model.BlockText, Text: "after"},
			{Type: model.BlockImage, URL: "https://cdn.example.com/pic.png"},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Body, 2)
	assert.Equal(t, "after", updated.Body[0].Text)
	assert.Equal(t, []string{"https://cdn.example.com/pic.png"}, updated.MediaRefs)
	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, 0, updated.Depth)
	assert.True(t, updated.UpdatedAt.After(item.UpdatedAt) || updated.UpdatedAt.Equal(item.UpdatedAt))
}

func TestUpdateForbiddenForNonAuthor(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	item := createItem(t, svc, target, "user-1", "original", nil)

	_, err := svc.Update(ctx, target.Kind, item.ID, "user-2", UpdateThreadItemRequest{Body: textBody("hijack")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := svc.Get(ctx, target.Kind, item.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Body[0].Text)
}

func TestUpdateDeletedItem(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	item := createItem(t, svc, target, "user-1", "gone soon", nil)
	require.NoError(t, svc.SoftDelete(ctx, target.Kind, item.ID, "user-1"))

	_, err := svc.Update(ctx, target.Kind, item.ID, "user-1", UpdateThreadItemRequest{Body: textBody("too late")})
	assert.ErrorIs(t, err, apperr.ErrAlreadyDeleted)
}

func TestSoftDeleteTombstonesParent(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	reply1 := createItem(t, svc, target, "user-2", "reply one", &parent.ID)
	reply2 := createItem(t, svc, target, "user-3", "reply two", &parent.ID)
	before := targetCounter(t, st, target, "comment_count")

	require.NoError(t, svc.SoftDelete(ctx, target.Kind, parent.ID, "user-1"))

	// the row survives as a tombstone with its replies still reachable
	stored, err := svc.Get(ctx, target.Kind, parent.ID, "")
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	require.NotNil(t, stored.DeletedAt)
	require.Len(t, stored.Body, 1)
	assert.Equal(t, model.BlockText, stored.Body[0].Type)
	assert.Empty(t, stored.MediaRefs)
	require.Len(t, stored.Replies, 2)
	assert.Equal(t, reply1.ID, stored.Replies[0].ID)
	assert.Equal(t, reply2.ID, stored.Replies[1].ID)

	// deleted parents drop out of the listing
	result, err := svc.List(ctx, target, 0, DefaultPageSize, "")
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, int64(0), result.Pagination.TotalElements)

	// exactly one counter moved
	assert.Equal(t, before-1, targetCounter(t, st, target, "comment_count"))
}

func TestSoftDeleteReplyDecrementsReplyCount(t *testing.T) {
	st, svc, target := newThreadFixture(t)
	ctx := context.Background()

	parent := createItem(t, svc, target, "user-1", "parent", nil)
	reply := createItem(t, svc, target, "user-2", "reply", &parent.ID)
	before := targetCounter(t, st, target, "comment_count")

	require.NoError(t, svc.SoftDelete(ctx, target.Kind, reply.ID, "user-2"))

	stored, err := svc.Get(ctx, target.Kind, parent.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ReplyCount)
	assert.Empty(t, stored.Replies)

	// reply_count moved; comment_count did not
	assert.Equal(t, before, targetCounter(t, st, target, "comment_count"))
}

func TestSoftDeleteChecks(t *testing.T) {
	_, svc, target := newThreadFixture(t)
	ctx := context.Background()

	item := createItem(t, svc, target, "user-1", "once", nil)

	err := svc.SoftDelete(ctx, target.Kind, item.ID, "user-2")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, svc.SoftDelete(ctx, target.Kind, item.ID, "user-1"))

	err = svc.SoftDelete(ctx, target.Kind, item.ID, "user-1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyDeleted)

	err = svc.SoftDelete(ctx, target.Kind, "no-such-item", "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
