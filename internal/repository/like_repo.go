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

const likeCollection = "like_edges"

type LikeRepository interface {
	// CreateEdge is conditional: it fails with ErrConflict when the
	// (subject, target, user) edge already exists.
	CreateEdge(ctx context.Context, edge *model.LikeEdge) error
	// DeleteEdge is conditional: it fails with ErrNotFound when the edge is
	// already gone.
	DeleteEdge(ctx context.Context, subjectType, targetID, userID string) error
	ExistsForUser(ctx context.Context, subjectType, targetID, userID string) (bool, error)
	CountByTarget(ctx context.Context, subjectType, targetID string) (int64, error)
	// LikedSetForUser reports, in one batched query, which of targetIDs the
	// user has liked.
	LikedSetForUser(ctx context.Context, subjectType string, targetIDs []string, userID string) (map[string]bool, error)
}

type likeRepository struct {
	store   store.DocumentStore
	redis   *util.RedisClient
	timeout time.Duration
}

const (
	likeCountCachePrefix = "like:count:"
	likeCacheExpiration  = 10 * time.Minute
)

func NewLikeRepository(st store.DocumentStore, redis *util.RedisClient, timeout time.Duration) LikeRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &likeRepository{
		store:   st,
		redis:   redis,
		timeout: timeout,
	}
}

// CreateEdge inserts the edge under its deterministic id; the store's
// conditional insert is what makes concurrent double-likes impossible.
func (r *likeRepository) CreateEdge(ctx context.Context, edge *model.LikeEdge) error {
	edge.ID = model.LikeEdgeID(edge.SubjectType, edge.TargetID, edge.UserID)
	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Insert(ctx, likeCollection, edge.ID, data); err != nil {
		return err
	}

	if r.redis != nil {
		r.redis.Delete(likeCountCacheKey(edge.SubjectType, edge.TargetID))
	}
	return nil
}

// DeleteEdge removes the edge; absence is surfaced so the caller can tell it
// lost a concurrent toggle.
func (r *likeRepository) DeleteEdge(ctx context.Context, subjectType, targetID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Delete(ctx, likeCollection, model.LikeEdgeID(subjectType, targetID, userID)); err != nil {
		return err
	}

	if r.redis != nil {
		r.redis.Delete(likeCountCacheKey(subjectType, targetID))
	}
	return nil
}

// ExistsForUser checks edge existence without mutating anything
func (r *likeRepository) ExistsForUser(ctx context.Context, subjectType, targetID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.store.Get(ctx, likeCollection, model.LikeEdgeID(subjectType, targetID, userID))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountByTarget counts live edges for a target
func (r *likeRepository) CountByTarget(ctx context.Context, subjectType, targetID string) (int64, error) {
	// Try cache first
	cacheKey := likeCountCacheKey(subjectType, targetID)
	if r.redis != nil {
		cached, err := r.redis.Get(cacheKey)
		if err == nil {
			var count int64
			if _, err := fmt.Sscanf(cached, "%d", &count); err == nil {
				return count, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	count, err := r.store.Count(ctx, likeCollection, []store.Filter{
		{Field: "subject_type", Value: subjectType},
		{Field: "target_id", Value: targetID},
	})
	if err != nil {
		return 0, err
	}

	// Cache the count
	if r.redis != nil {
		r.redis.Set(cacheKey, fmt.Sprintf("%d", count), likeCacheExpiration)
	}

	return count, nil
}

// LikedSetForUser resolves membership by probing the deterministic edge ids
// in one batched query instead of one existence check per target.
func (r *likeRepository) LikedSetForUser(ctx context.Context, subjectType string, targetIDs []string, userID string) (map[string]bool, error) {
	liked := make(map[string]bool, len(targetIDs))
	if len(targetIDs) == 0 || userID == "" {
		return liked, nil
	}

	ids := make([]string, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		ids = append(ids, model.LikeEdgeID(subjectType, targetID, userID))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	docs, err := r.store.QueryIn(ctx, likeCollection, "id", ids)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		var edge model.LikeEdge
		if err := json.Unmarshal(doc.Data, &edge); err != nil {
			continue
		}
		liked[edge.TargetID] = true
	}
	return liked, nil
}

func likeCountCacheKey(subjectType, targetID string) string {
	return fmt.Sprintf("%s%s:%s", likeCountCachePrefix, subjectType, targetID)
}
