package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/repository"

	apperr "engagehub/internal/errors"
)

// ThreadService orchestrates the thread lifecycle: create, list with nested
// replies, author-only update and soft delete. It enforces every threading
// invariant before the repository sees a write.
type ThreadService interface {
	Create(ctx context.Context, target model.TargetRef, authorID string, req CreateThreadItemRequest) (*model.ThreadItem, error)
	Get(ctx context.Context, kind model.SubjectKind, itemID, viewerID string) (*model.ThreadItem, error)
	List(ctx context.Context, target model.TargetRef, page, size int, viewerID string) (*ThreadListResult, error)
	Update(ctx context.Context, kind model.SubjectKind, itemID, authorID string, req UpdateThreadItemRequest) (*model.ThreadItem, error)
	SoftDelete(ctx context.Context, kind model.SubjectKind, itemID, authorID string) error
}

type threadService struct {
	threadRepo repository.ThreadRepository
	likeRepo   repository.LikeRepository
	events     EventPublisher
}

type CreateThreadItemRequest struct {
	Body     []model.ContentBlock `json:"body" binding:"required,dive"`
	ParentID *string              `json:"parent_id,omitempty"`
}

type UpdateThreadItemRequest struct {
	Body []model.ContentBlock `json:"body" binding:"required,dive"`
}

// ThreadListResult carries both shapes of one listing page: the nested tree
// and the flattened sequence (each parent immediately followed by its
// replies, oldest reply first).
type ThreadListResult struct {
	Items      []*model.ThreadItem `json:"items"`
	Flat       []*model.ThreadItem `json:"-"`
	Pagination model.Pagination    `json:"pagination"`
}

func NewThreadService(
	threadRepo repository.ThreadRepository,
	likeRepo repository.LikeRepository,
	events EventPublisher,
) ThreadService {
	return &threadService{
		threadRepo: threadRepo,
		likeRepo:   likeRepo,
		events:     events,
	}
}

// Create creates a top-level item or a reply. Validation happens before any
// write; the only post-insert mutations are atomic counter bumps.
func (s *threadService) Create(ctx context.Context, target model.TargetRef, authorID string, req CreateThreadItemRequest) (*model.ThreadItem, error) {
	if !target.Kind.IsValid() || target.ID == "" {
		return nil, fmt.Errorf("%w: unknown target", apperr.ErrInvalidInput)
	}
	if authorID == "" {
		return nil, fmt.Errorf("%w: missing author", apperr.ErrInvalidInput)
	}
	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	// Validate target exists
	if _, err := s.threadRepo.GetTarget(ctx, target); err != nil {
		return nil, err
	}

	// If parent_id is provided, the item is a reply: the parent must be a
	// live depth-0 item on the same target. Depth is capped at 1.
	depth := 0
	var parentID *string
	if req.ParentID != nil && *req.ParentID != "" {
		parent, err := s.threadRepo.GetByID(ctx, target.Kind, *req.ParentID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent not found", apperr.ErrInvalidParent)
			}
			return nil, err
		}
		if parent.Depth != 0 {
			return nil, apperr.ErrDepthExceeded
		}
		if parent.Deleted {
			return nil, fmt.Errorf("%w: parent is deleted", apperr.ErrInvalidParent)
		}
		if parent.TargetID != target.ID || parent.TargetKind != target.Kind {
			return nil, fmt.Errorf("%w: parent belongs to another target", apperr.ErrInvalidParent)
		}
		depth = 1
		parentID = req.ParentID
	}

	now := time.Now().UTC()
	body := model.NormalizeBody(req.Body)
	item := &model.ThreadItem{
		ID:         model.NewThreadItemID(),
		TargetKind: target.Kind,
		TargetID:   target.ID,
		AuthorID:   authorID,
		ParentID:   parentID,
		Depth:      depth,
		Body:       body,
		MediaRefs:  model.MediaRefsFromBody(body),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.threadRepo.Insert(ctx, item); err != nil {
		return nil, err
	}

	// Counter bumps after the primary write are best-effort: one retry,
	// then warn. List's live reply grouping bounds the visible drift.
	if depth == 1 {
		s.bumpCounter(fmt.Sprintf("reply_count on %s %s", target.Kind, *parentID), func() error {
			_, err := s.threadRepo.IncrementField(ctx, target.Kind, *parentID, "reply_count", 1)
			return err
		})
	}
	s.bumpCounter(fmt.Sprintf("comment_count on %s %s", target.Kind, target.ID), func() error {
		_, err := s.threadRepo.IncrementTargetField(ctx, target, "comment_count", 1)
		return err
	})

	s.publish(EventThreadCreated, item)
	return item, nil
}

// Get returns one item with live replies and viewer like annotation
func (s *threadService) Get(ctx context.Context, kind model.SubjectKind, itemID, viewerID string) (*model.ThreadItem, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown subject kind", apperr.ErrInvalidInput)
	}
	item, err := s.threadRepo.GetByID(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}

	if item.Depth == 0 {
		replies, err := s.threadRepo.GetByParentIDIn(ctx, kind, []string{item.ID})
		if err != nil {
			return nil, err
		}
		attachReplies(item, replies)
	}

	s.annotateLikes(ctx, kind, viewerID, item)
	return item, nil
}

// List returns one page of depth-0 items, each with its live replies nested
// underneath. All replies for the page are fetched in a single batched
// query, never one query per parent.
func (s *threadService) List(ctx context.Context, target model.TargetRef, page, size int, viewerID string) (*ThreadListResult, error) {
	if err := ValidatePageRequest(page, size); err != nil {
		return nil, err
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if !target.Kind.IsValid() || target.ID == "" {
		return nil, fmt.Errorf("%w: unknown target", apperr.ErrInvalidInput)
	}

	// Validate target exists
	if _, err := s.threadRepo.GetTarget(ctx, target); err != nil {
		return nil, err
	}

	parents, err := s.threadRepo.GetByTargetOrdered(ctx, target, PageOffset(page, size), size)
	if err != nil {
		return nil, err
	}

	total, err := s.threadRepo.CountByTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, p.ID)
	}
	replies, err := s.threadRepo.GetByParentIDIn(ctx, target.Kind, parentIDs)
	if err != nil {
		return nil, err
	}

	grouped := groupByParent(replies)
	flat := make([]*model.ThreadItem, 0, len(parents)+len(replies))
	for _, parent := range parents {
		attachReplies(parent, grouped[parent.ID])
		flat = append(flat, parent)
		flat = append(flat, parent.Replies...)
	}

	s.annotateLikes(ctx, target.Kind, viewerID, flat...)

	pagination, err := AssemblePagination(total, page, size)
	if err != nil {
		return nil, err
	}

	return &ThreadListResult{
		Items:      parents,
		Flat:       flat,
		Pagination: pagination,
	}, nil
}

// Update replaces the body. Author-only; parent, depth and counters are
// untouched, media refs are recomputed from the new body.
func (s *threadService) Update(ctx context.Context, kind model.SubjectKind, itemID, authorID string, req UpdateThreadItemRequest) (*model.ThreadItem, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown subject kind", apperr.ErrInvalidInput)
	}
	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	item, err := s.threadRepo.GetByID(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, apperr.ErrAlreadyDeleted
	}
	if item.AuthorID != authorID {
		return nil, apperr.ErrForbidden
	}

	body := model.NormalizeBody(req.Body)
	now := time.Now().UTC()
	partial := map[string]any{
		"body":       body,
		"media_refs": model.MediaRefsFromBody(body),
		"updated_at": now,
	}
	if err := s.threadRepo.UpdateFields(ctx, kind, item.TargetID, itemID, partial); err != nil {
		return nil, err
	}

	return s.threadRepo.GetByID(ctx, kind, itemID)
}

// SoftDelete tombstones the item. The row stays so sibling counters and
// thread shape survive; exactly one counter is decremented.
func (s *threadService) SoftDelete(ctx context.Context, kind model.SubjectKind, itemID, authorID string) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown subject kind", apperr.ErrInvalidInput)
	}

	item, err := s.threadRepo.GetByID(ctx, kind, itemID)
	if err != nil {
		return err
	}
	if item.Deleted {
		return apperr.ErrAlreadyDeleted
	}
	if item.AuthorID != authorID {
		return apperr.ErrForbidden
	}

	now := time.Now().UTC()
	partial := map[string]any{
		"deleted":    true,
		"deleted_at": now,
		"updated_at": now,
		"body":       model.TombstoneBody(),
		"media_refs": nil,
	}
	if err := s.threadRepo.UpdateFields(ctx, kind, item.TargetID, itemID, partial); err != nil {
		return err
	}

	target := item.Ref()
	if item.Depth == 1 && item.ParentID != nil {
		parentID := *item.ParentID
		s.bumpCounter(fmt.Sprintf("reply_count on %s %s", kind, parentID), func() error {
			_, err := s.threadRepo.IncrementField(ctx, kind, parentID, "reply_count", -1)
			return err
		})
	} else {
		s.bumpCounter(fmt.Sprintf("comment_count on %s %s", kind, target.ID), func() error {
			_, err := s.threadRepo.IncrementTargetField(ctx, target, "comment_count", -1)
			return err
		})
	}

	s.publish(EventThreadDeleted, item)
	return nil
}

// validateBody rejects empty or malformed bodies before any store call
func validateBody(body []model.ContentBlock) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: body is empty", apperr.ErrInvalidInput)
	}
	for _, block := range body {
		if !block.Type.IsValid() {
			return fmt.Errorf("%w: unknown block type %q", apperr.ErrInvalidInput, block.Type)
		}
		if block.Type.IsMedia() && block.URL == "" {
			return fmt.Errorf("%w: media block without url", apperr.ErrInvalidInput)
		}
	}
	if !model.HasText(body) {
		return fmt.Errorf("%w: body needs at least one text block", apperr.ErrInvalidInput)
	}
	return nil
}

// attachReplies nests the live replies under their parent and overrides the
// stored reply count with the group size, healing any drift at read time.
func attachReplies(parent *model.ThreadItem, replies []*model.ThreadItem) {
	live := make([]*model.ThreadItem, 0, len(replies))
	for _, reply := range replies {
		if !reply.Deleted {
			live = append(live, reply)
		}
	}
	parent.Replies = live
	parent.ReplyCount = int64(len(live))
}

func groupByParent(replies []*model.ThreadItem) map[string][]*model.ThreadItem {
	grouped := make(map[string][]*model.ThreadItem)
	for _, reply := range replies {
		if reply.ParentID == nil {
			continue
		}
		grouped[*reply.ParentID] = append(grouped[*reply.ParentID], reply)
	}
	return grouped
}

// annotateLikes marks which of the listed items the viewer has liked, with
// one batched membership query.
func (s *threadService) annotateLikes(ctx context.Context, kind model.SubjectKind, viewerID string, items ...*model.ThreadItem) {
	if viewerID == "" || len(items) == 0 {
		return
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	liked, err := s.likeRepo.LikedSetForUser(ctx, kind.ThreadCollection(), ids, viewerID)
	if err != nil {
		// Annotation is cosmetic; the listing is still correct without it.
		log.Printf("Failed to annotate likes for viewer %s: %v", viewerID, err)
		return
	}
	for _, item := range items {
		item.LikedByViewer = liked[item.ID]
	}
}

// bumpCounter applies a counter mutation with one compensating retry. The
// primary write has already succeeded, so a second failure is logged instead
// of failing the operation.
func (s *threadService) bumpCounter(desc string, fn func() error) {
	if err := fn(); err != nil {
		if err = fn(); err != nil {
			log.Printf("Counter inconsistency: %s: %v", desc, err)
		}
	}
}

func (s *threadService) publish(eventType string, item *model.ThreadItem) {
	if s.events == nil {
		return
	}
	event := EngagementEvent{
		Type:       eventType,
		Kind:       item.TargetKind,
		TargetID:   item.TargetID,
		ItemID:     item.ID,
		ActorID:    item.AuthorID,
		OccurredAt: time.Now().UTC(),
	}
	go func() {
		if err := s.events.PublishEngagement(event); err != nil {
			log.Printf("Failed to publish %s event: %v", eventType, err)
		}
	}()
}
