package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
	BlockVideo BlockType = "video"
	BlockFile  BlockType = "file"
)

// IsValid reports whether t is a known block type.
func (t BlockType) IsValid() bool {
	switch t {
	case BlockText, BlockImage, BlockVideo, BlockFile:
		return true
	}
	return false
}

// IsMedia reports whether the block carries an attached media URL.
func (t BlockType) IsMedia() bool {
	return t == BlockImage || t == BlockVideo || t == BlockFile
}

// ContentBlock is one ordered piece of a thread item body. Text blocks carry
// Text, media blocks carry URL.
type ContentBlock struct {
	Type  BlockType `json:"type" binding:"required,blocktype"`
	Order int       `json:"order"`
	Text  string    `json:"text,omitempty"`
	URL   string    `json:"url,omitempty"`
}

// ThreadItem is a comment or question entry: depth 0 for top-level items,
// depth 1 for replies. Counters are denormalized and mutated only through
// atomic store increments.
type ThreadItem struct {
	ID         string         `json:"id"`
	TargetKind SubjectKind    `json:"target_kind"`
	TargetID   string         `json:"target_id"`
	AuthorID   string         `json:"author_id"`
	ParentID   *string        `json:"parent_id,omitempty"`
	Depth      int            `json:"depth"`
	Body       []ContentBlock `json:"body"`
	MediaRefs  []string       `json:"media_refs,omitempty"`
	LikeCount  int64          `json:"like_count"`
	ReplyCount int64          `json:"reply_count"`
	Deleted    bool           `json:"deleted"`
	DeletedAt  *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`

	// Populated at read time, never stored.
	Replies       []*ThreadItem `json:"replies,omitempty"`
	LikedByViewer bool          `json:"liked_by_viewer,omitempty"`
}

// Ref is the target reference the item is attached to.
func (t *ThreadItem) Ref() TargetRef {
	return TargetRef{Kind: t.TargetKind, ID: t.TargetID}
}

// NewThreadItemID generates an opaque id for a new item.
func NewThreadItemID() string {
	return uuid.New().String()
}

// MediaRefsFromBody extracts the media URLs from body in display order.
// MediaRefs are always recomputed from the body on every write, never edited
// on their own.
func MediaRefsFromBody(body []ContentBlock) []string {
	var refs []string
	for _, b := range body {
		if b.Type.IsMedia() && b.URL != "" {
			refs = append(refs, b.URL)
		}
	}
	return refs
}

// NormalizeBody rewrites Order to the slice position so stored order always
// matches display order.
func NormalizeBody(body []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(body))
	for i, b := range body {
		b.Order = i
		out[i] = b
	}
	return out
}

// HasText reports whether body contains at least one text block with
// non-empty trimmed content.
func HasText(body []ContentBlock) bool {
	for _, b := range body {
		if b.Type == BlockText && strings.TrimSpace(b.Text) != "" {
			return true
		}
	}
	return false
}

// TombstoneBody is the placeholder a soft-deleted item keeps so thread shape
// survives without the original content.
func TombstoneBody() []ContentBlock {
	return []ContentBlock{{Type: BlockText, Order: 0, Text: "deleted"}}
}
