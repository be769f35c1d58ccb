package app

import (
	"net/http"

	"engagehub/internal/model"
	"engagehub/internal/service"
	"engagehub/internal/util"

	apperr "engagehub/internal/errors"

	"github.com/gin-gonic/gin"
)

type EngagementHandler struct {
	engagementService service.EngagementService
}

func NewEngagementHandler(engagementService service.EngagementService) *EngagementHandler {
	return &EngagementHandler{
		engagementService: engagementService,
	}
}

// ToggleContentLike handles like toggling on a content object
// POST /api/v1/targets/:kind/:targetId/like
func (h *EngagementHandler) ToggleContentLike(c *gin.Context) {
	h.toggle(c, model.ScopeContent, c.Param("targetId"))
}

// ToggleThreadLike handles like toggling on a thread item
// POST /api/v1/threads/:kind/:id/like
func (h *EngagementHandler) ToggleThreadLike(c *gin.Context) {
	h.toggle(c, model.ScopeThread, c.Param("id"))
}

func (h *EngagementHandler) toggle(c *gin.Context, scope model.LikeScope, targetID string) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	kind := model.SubjectKind(c.Param("kind"))
	if !kind.IsValid() {
		util.BadRequest(c, "Unknown subject kind")
		return
	}
	if targetID == "" {
		util.BadRequest(c, "Target ID is required")
		return
	}

	subject := model.LikeSubject{Kind: kind, Scope: scope}
	result, err := h.engagementService.ToggleLike(c.Request.Context(), subject, targetID, userID.(string))
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Like toggled successfully", gin.H{
		"is_liked":   result.IsLiked,
		"like_count": result.LikeCount,
	})
}

// GetThreadLike handles reading like state for a thread item
// GET /api/v1/threads/:kind/:id/like
func (h *EngagementHandler) GetThreadLike(c *gin.Context) {
	kind := model.SubjectKind(c.Param("kind"))
	itemID := c.Param("id")
	if !kind.IsValid() {
		util.BadRequest(c, "Unknown subject kind")
		return
	}
	if itemID == "" {
		util.BadRequest(c, "Thread item ID is required")
		return
	}

	subject := model.LikeSubject{Kind: kind, Scope: model.ScopeThread}
	count, err := h.engagementService.GetLikeCount(c.Request.Context(), subject, itemID)
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	payload := gin.H{"like_count": count}
	if viewerID := optionalUserID(c); viewerID != "" {
		liked, err := h.engagementService.HasUserLiked(c.Request.Context(), subject, itemID, viewerID)
		if err == nil {
			payload["is_liked"] = liked
		}
	}

	util.SuccessResponse(c, http.StatusOK, "Like state retrieved successfully", payload)
}

// TrackView handles view counting for a content object
// POST /api/v1/targets/:kind/:targetId/view
func (h *EngagementHandler) TrackView(c *gin.Context) {
	target, ok := targetFromPath(c)
	if !ok {
		return
	}

	h.engagementService.IncrementView(target, optionalUserID(c))

	// Fire-and-forget: the increment happens in the background and
	// duplicate views are accepted behavior.
	util.SuccessResponse(c, http.StatusAccepted, "View tracked", nil)
}
