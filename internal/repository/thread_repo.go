package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/store"
	"engagehub/internal/util"

	apperr "engagehub/internal/errors"
)

// MaxParentBatch caps the id set handed to the batched reply fetch so a
// single page can never fan out into an unbounded IN query.
const MaxParentBatch = 100

type ThreadRepository interface {
	GetByID(ctx context.Context, kind model.SubjectKind, id string) (*model.ThreadItem, error)
	GetByTargetOrdered(ctx context.Context, target model.TargetRef, offset, limit int) ([]*model.ThreadItem, error)
	GetByParentIDIn(ctx context.Context, kind model.SubjectKind, parentIDs []string) ([]*model.ThreadItem, error)
	CountByTarget(ctx context.Context, target model.TargetRef) (int64, error)
	Insert(ctx context.Context, item *model.ThreadItem) error
	UpdateFields(ctx context.Context, kind model.SubjectKind, targetID, itemID string, partial map[string]any) error
	IncrementField(ctx context.Context, kind model.SubjectKind, itemID, field string, delta int64) (int64, error)
	GetTarget(ctx context.Context, target model.TargetRef) (*store.Document, error)
	IncrementTargetField(ctx context.Context, target model.TargetRef, field string, delta int64) (int64, error)
}

type threadRepository struct {
	store   store.DocumentStore
	redis   *util.RedisClient
	timeout time.Duration
}

const (
	threadCountCachePrefix = "thread:count:"
	threadFirstCachePrefix = "thread:first:"
	threadCacheExpiration  = 15 * time.Minute
)

func NewThreadRepository(st store.DocumentStore, redis *util.RedisClient, timeout time.Duration) ThreadRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &threadRepository{
		store:   st,
		redis:   redis,
		timeout: timeout,
	}
}

// GetByID finds a thread item by id
func (r *threadRepository) GetByID(ctx context.Context, kind model.SubjectKind, id string) (*model.ThreadItem, error) {
	var doc *store.Document
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.store.Get(ctx, kind.ThreadCollection(), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeItem(doc.Data)
}

// GetByTargetOrdered returns the depth-0, non-deleted items for a target,
// oldest first, sliced to [offset, offset+limit).
func (r *threadRepository) GetByTargetOrdered(ctx context.Context, target model.TargetRef, offset, limit int) ([]*model.ThreadItem, error) {
	// The first page is the hot one; it gets a short cache. Stale stored
	// reply counts in it are healed at read time by the live grouping.
	cacheKey := firstPageCacheKey(target, limit)
	if r.redis != nil && offset == 0 {
		if cached, err := r.redis.Get(cacheKey); err == nil {
			var items []*model.ThreadItem
			if json.Unmarshal([]byte(cached), &items) == nil {
				return items, nil
			}
		}
	}

	filters := []store.Filter{
		{Field: "target_id", Value: target.ID},
		{Field: "depth", Value: 0},
		{Field: "deleted", Value: false},
	}
	var docs []store.Document
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		docs, err = r.store.Query(ctx, target.Kind.ThreadCollection(), filters,
			store.Order{Field: "created_at"}, store.Page{Offset: offset, Limit: limit})
		return err
	})
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(docs)
	if err != nil {
		return nil, err
	}

	if r.redis != nil && offset == 0 {
		if data, err := json.Marshal(items); err == nil {
			r.redis.Set(cacheKey, string(data), threadCacheExpiration)
		}
	}
	return items, nil
}

// GetByParentIDIn fetches every reply whose parent is in the id set with a
// single batched query, oldest first.
func (r *threadRepository) GetByParentIDIn(ctx context.Context, kind model.SubjectKind, parentIDs []string) ([]*model.ThreadItem, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	if len(parentIDs) > MaxParentBatch {
		return nil, fmt.Errorf("%w: parent batch exceeds %d ids", apperr.ErrInvalidPageRequest, MaxParentBatch)
	}
	var docs []store.Document
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		docs, err = r.store.QueryIn(ctx, kind.ThreadCollection(), "parent_id", parentIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeItems(docs)
}

// CountByTarget counts depth-0, non-deleted items for a target
func (r *threadRepository) CountByTarget(ctx context.Context, target model.TargetRef) (int64, error) {
	// Try cache first
	cacheKey := countCacheKey(target)
	if r.redis != nil {
		cached, err := r.redis.Get(cacheKey)
		if err == nil {
			var count int64
			if _, err := fmt.Sscanf(cached, "%d", &count); err == nil {
				return count, nil
			}
		}
	}

	filters := []store.Filter{
		{Field: "target_id", Value: target.ID},
		{Field: "depth", Value: 0},
		{Field: "deleted", Value: false},
	}
	var count int64
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.store.Count(ctx, target.Kind.ThreadCollection(), filters)
		return err
	})
	if err != nil {
		return 0, err
	}

	// Cache the count
	if r.redis != nil {
		r.redis.Set(cacheKey, fmt.Sprintf("%d", count), threadCacheExpiration)
	}

	return count, nil
}

// Insert persists a new item and invalidates the target's count cache
func (r *threadRepository) Insert(ctx context.Context, item *model.ThreadItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if err := r.write(ctx, func(ctx context.Context) error {
		return r.store.Insert(ctx, item.TargetKind.ThreadCollection(), item.ID, data)
	}); err != nil {
		return err
	}

	if r.redis != nil && item.Depth == 0 {
		r.redis.Delete(countCacheKey(item.Ref()))
		r.redis.DeletePattern(firstPageCachePattern(item.Ref()))
	}
	return nil
}

// UpdateFields applies a partial update and drops the cached first page. The
// count cache is only invalidated when the deleted flag changes, since that
// is what the listing count filters on.
func (r *threadRepository) UpdateFields(ctx context.Context, kind model.SubjectKind, targetID, itemID string, partial map[string]any) error {
	if err := r.write(ctx, func(ctx context.Context) error {
		return r.store.UpdateFields(ctx, kind.ThreadCollection(), itemID, partial)
	}); err != nil {
		return err
	}

	if r.redis != nil {
		target := model.TargetRef{Kind: kind, ID: targetID}
		r.redis.DeletePattern(firstPageCachePattern(target))
		if _, touched := partial["deleted"]; touched {
			r.redis.Delete(countCacheKey(target))
		}
	}
	return nil
}

// IncrementField atomically bumps a counter on a thread item
func (r *threadRepository) IncrementField(ctx context.Context, kind model.SubjectKind, itemID, field string, delta int64) (int64, error) {
	var value int64
	err := r.write(ctx, func(ctx context.Context) error {
		var err error
		value, err = r.store.AtomicIncrement(ctx, kind.ThreadCollection(), itemID, field, delta)
		return err
	})
	return value, err
}

// GetTarget fetches the parent content object a thread attaches to
func (r *threadRepository) GetTarget(ctx context.Context, target model.TargetRef) (*store.Document, error) {
	var doc *store.Document
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.store.Get(ctx, target.Kind.TargetCollection(), target.ID)
		return err
	})
	return doc, err
}

// IncrementTargetField atomically bumps a counter on the content object
func (r *threadRepository) IncrementTargetField(ctx context.Context, target model.TargetRef, field string, delta int64) (int64, error) {
	var value int64
	err := r.write(ctx, func(ctx context.Context) error {
		var err error
		value, err = r.store.AtomicIncrement(ctx, target.Kind.TargetCollection(), target.ID, field, delta)
		return err
	})
	return value, err
}

// readWithRetry bounds a read-only store call by the configured timeout and
// retries it once on timeout. Writes never go through here.
func (r *threadRepository) readWithRetry(ctx context.Context, fn func(context.Context) error) error {
	err := r.bounded(ctx, fn)
	if errors.Is(err, apperr.ErrStoreTimeout) {
		err = r.bounded(ctx, fn)
	}
	return err
}

func (r *threadRepository) write(ctx context.Context, fn func(context.Context) error) error {
	return r.bounded(ctx, fn)
}

func (r *threadRepository) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

func countCacheKey(target model.TargetRef) string {
	return fmt.Sprintf("%s%s:%s", threadCountCachePrefix, target.Kind, target.ID)
}

func firstPageCacheKey(target model.TargetRef, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d", threadFirstCachePrefix, target.Kind, target.ID, limit)
}

func firstPageCachePattern(target model.TargetRef) string {
	return fmt.Sprintf("%s%s:%s:*", threadFirstCachePrefix, target.Kind, target.ID)
}

func decodeItem(data []byte) (*model.ThreadItem, error) {
	var item model.ThreadItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: corrupt thread item: %v", apperr.ErrStoreUnavailable, err)
	}
	return &item, nil
}

func decodeItems(docs []store.Document) ([]*model.ThreadItem, error) {
	items := make([]*model.ThreadItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeItem(doc.Data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
