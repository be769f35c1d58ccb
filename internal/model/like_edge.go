package model

import (
	"fmt"
	"time"
)

// LikeScope distinguishes what a like attaches to: the content object itself
// or a thread item underneath it.
type LikeScope string

const (
	ScopeContent LikeScope = "content"
	ScopeThread  LikeScope = "thread"
)

func (s LikeScope) IsValid() bool {
	return s == ScopeContent || s == ScopeThread
}

// LikeSubject names the plane a like lives on: a subject kind plus whether
// the target is the content object or a thread item.
type LikeSubject struct {
	Kind  SubjectKind `json:"kind"`
	Scope LikeScope   `json:"scope"`
}

// Collection is the store collection holding documents of this subject.
func (s LikeSubject) Collection() string {
	if s.Scope == ScopeThread {
		return s.Kind.ThreadCollection()
	}
	return s.Kind.TargetCollection()
}

// LikeEdge records that a user likes a target. Existence of the edge is the
// sole source of truth for "liked"; CreatedAt is audit only. The edge id is
// derived from the triple, so the store's conditional insert/delete doubles
// as the uniqueness guarantee.
type LikeEdge struct {
	ID          string    `json:"id"`
	SubjectType string    `json:"subject_type"`
	TargetID    string    `json:"target_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// LikeEdgeID builds the deterministic edge id for a
// (subjectType, target, user) triple. SubjectType is the subject collection
// name, which keeps ids unique across planes.
func LikeEdgeID(subjectType, targetID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", subjectType, targetID, userID)
}
