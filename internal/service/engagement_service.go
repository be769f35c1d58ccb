package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/repository"
	"engagehub/internal/util"

	apperr "engagehub/internal/errors"
)

// EngagementService owns the like toggle state machine and view counting.
// Every counter it touches goes through the store's atomic increment; it
// never does read-compute-write on a counter.
type EngagementService interface {
	// ToggleLike flips the caller's like on a target. The returned count is
	// read back from the stored document, not computed locally.
	ToggleLike(ctx context.Context, subject model.LikeSubject, targetID, userID string) (*ToggleLikeResult, error)
	HasUserLiked(ctx context.Context, subject model.LikeSubject, targetID, userID string) (bool, error)
	GetLikeCount(ctx context.Context, subject model.LikeSubject, targetID string) (int64, error)
	// IncrementView bumps the target's view counter. Fire-and-forget:
	// duplicate views are accepted behavior and failures never surface.
	IncrementView(target model.TargetRef, viewerID string)
}

type engagementService struct {
	likeRepo   repository.LikeRepository
	threadRepo repository.ThreadRepository
	events     EventPublisher
	redis      *util.RedisClient

	viewDedupeWindow time.Duration
}

func NewEngagementService(
	likeRepo repository.LikeRepository,
	threadRepo repository.ThreadRepository,
	events EventPublisher,
	redis *util.RedisClient,
	viewDedupeWindow time.Duration,
) EngagementService {
	return &engagementService{
		likeRepo:         likeRepo,
		threadRepo:       threadRepo,
		events:           events,
		redis:            redis,
		viewDedupeWindow: viewDedupeWindow,
	}
}

type ToggleLikeResult struct {
	IsLiked   bool  `json:"is_liked"`
	LikeCount int64 `json:"like_count"`
}

// ToggleLike runs on conditional edge operations only. The create arm is a
// conditional insert keyed by the (subject, target, user) triple; the remove
// arm is a conditional delete. Two racing toggles cannot both win the same
// arm, so the counter moves exactly once per edge transition.
func (s *engagementService) ToggleLike(ctx context.Context, subject model.LikeSubject, targetID, userID string) (*ToggleLikeResult, error) {
	if !subject.Kind.IsValid() || !subject.Scope.IsValid() {
		return nil, fmt.Errorf("%w: unknown like subject", apperr.ErrInvalidInput)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", apperr.ErrInvalidInput)
	}
	if err := s.checkTarget(ctx, subject, targetID); err != nil {
		return nil, err
	}

	subjectType := subject.Collection()

	// Two attempts: losing a concurrent toggle on one arm re-runs the
	// other arm once.
	for attempt := 0; attempt < 2; attempt++ {
		edge := &model.LikeEdge{
			SubjectType: subjectType,
			TargetID:    targetID,
			UserID:      userID,
			CreatedAt:   time.Now().UTC(),
		}
		err := s.likeRepo.CreateEdge(ctx, edge)
		if err == nil {
			count := s.applyLikeDelta(ctx, subject, targetID, +1)
			s.publish(EventLiked, subject.Kind, targetID, userID)
			return &ToggleLikeResult{IsLiked: true, LikeCount: count}, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}

		// Edge exists: remove arm.
		err = s.likeRepo.DeleteEdge(ctx, subjectType, targetID, userID)
		if err == nil {
			count := s.applyLikeDelta(ctx, subject, targetID, -1)
			s.publish(EventUnliked, subject.Kind, targetID, userID)
			return &ToggleLikeResult{IsLiked: false, LikeCount: count}, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		// A concurrent toggle removed the edge between our two calls;
		// loop back to the create arm.
	}

	return nil, apperr.ErrConflict
}

// HasUserLiked checks edge existence for a single target
func (s *engagementService) HasUserLiked(ctx context.Context, subject model.LikeSubject, targetID, userID string) (bool, error) {
	if !subject.Kind.IsValid() || !subject.Scope.IsValid() {
		return false, fmt.Errorf("%w: unknown like subject", apperr.ErrInvalidInput)
	}
	return s.likeRepo.ExistsForUser(ctx, subject.Collection(), targetID, userID)
}

// GetLikeCount returns the live edge count for a target
func (s *engagementService) GetLikeCount(ctx context.Context, subject model.LikeSubject, targetID string) (int64, error) {
	if !subject.Kind.IsValid() || !subject.Scope.IsValid() {
		return 0, fmt.Errorf("%w: unknown like subject", apperr.ErrInvalidInput)
	}
	return s.likeRepo.CountByTarget(ctx, subject.Collection(), targetID)
}

// IncrementView tracks a view. A short redis SETNX window suppresses obvious
// duplicates when the viewer is known; without redis the increment always
// lands. Never fails the request.
func (s *engagementService) IncrementView(target model.TargetRef, viewerID string) {
	if !target.Kind.IsValid() {
		return
	}

	if s.redis != nil && viewerID != "" && s.viewDedupeWindow > 0 {
		key := fmt.Sprintf("view:dedupe:%s:%s:%s", target.Kind, target.ID, viewerID)
		fresh, err := s.redis.SetNX(key, 1, s.viewDedupeWindow)
		if err == nil && !fresh {
			return
		}
	}

	go func() {
		if _, err := s.threadRepo.IncrementTargetField(context.Background(), target, "view_count", 1); err != nil {
			log.Printf("Failed to track view for %s %s: %v", target.Kind, target.ID, err)
		}
	}()
}

// checkTarget validates the liked document exists and is live before any
// edge mutation.
func (s *engagementService) checkTarget(ctx context.Context, subject model.LikeSubject, targetID string) error {
	if subject.Scope == model.ScopeThread {
		item, err := s.threadRepo.GetByID(ctx, subject.Kind, targetID)
		if err != nil {
			return err
		}
		if item.Deleted {
			return apperr.ErrAlreadyDeleted
		}
		return nil
	}
	_, err := s.threadRepo.GetTarget(ctx, model.TargetRef{Kind: subject.Kind, ID: targetID})
	return err
}

// applyLikeDelta bumps the denormalized like counter and reads the stored
// value back. One compensating retry; after that the edge write stands and
// the drift is logged.
func (s *engagementService) applyLikeDelta(ctx context.Context, subject model.LikeSubject, targetID string, delta int64) int64 {
	increment := func() (int64, error) {
		if subject.Scope == model.ScopeThread {
			return s.threadRepo.IncrementField(ctx, subject.Kind, targetID, "like_count", delta)
		}
		return s.threadRepo.IncrementTargetField(ctx, model.TargetRef{Kind: subject.Kind, ID: targetID}, "like_count", delta)
	}

	count, err := increment()
	if err != nil {
		count, err = increment()
	}
	if err != nil {
		log.Printf("Counter inconsistency: like_count on %s %s: %v", subject.Collection(), targetID, err)
		// Fall back to the live edge count so the caller still gets a
		// truthful number.
		if live, countErr := s.likeRepo.CountByTarget(ctx, subject.Collection(), targetID); countErr == nil {
			return live
		}
		return 0
	}
	return count
}

func (s *engagementService) publish(eventType string, kind model.SubjectKind, targetID, actorID string) {
	if s.events == nil {
		return
	}
	event := EngagementEvent{
		Type:       eventType,
		Kind:       kind,
		TargetID:   targetID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
	go func() {
		if err := s.events.PublishEngagement(event); err != nil {
			log.Printf("Failed to publish %s event: %v", eventType, err)
		}
	}()
}
