package app

import (
	"net/http"
	"strconv"

	"engagehub/internal/model"
	"engagehub/internal/service"
	"engagehub/internal/util"

	apperr "engagehub/internal/errors"

	"github.com/gin-gonic/gin"
)

type ThreadHandler struct {
	threadService service.ThreadService
}

func NewThreadHandler(threadService service.ThreadService) *ThreadHandler {
	return &ThreadHandler{
		threadService: threadService,
	}
}

// CreateThreadItem handles item creation (top-level or reply)
// POST /api/v1/targets/:kind/:targetId/threads
func (h *ThreadHandler) CreateThreadItem(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	target, ok := targetFromPath(c)
	if !ok {
		return
	}

	var req service.CreateThreadItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	item, err := h.threadService.Create(c.Request.Context(), target, userID.(string), req)
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Thread item created successfully", gin.H{"item": item})
}

// ListThreadItems handles paginated listing with nested replies
// GET /api/v1/targets/:kind/:targetId/threads?page=0&size=20&flat=false
func (h *ThreadHandler) ListThreadItems(c *gin.Context) {
	target, ok := targetFromPath(c)
	if !ok {
		return
	}

	page, size, ok := pageParams(c)
	if !ok {
		return
	}

	viewerID := optionalUserID(c)
	result, err := h.threadService.List(c.Request.Context(), target, page, size, viewerID)
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	payload := gin.H{"pagination": result.Pagination}
	if c.DefaultQuery("flat", "false") == "true" {
		payload["items"] = result.Flat
	} else {
		payload["items"] = result.Items
	}

	util.SuccessResponse(c, http.StatusOK, "Thread items retrieved successfully", payload)
}

// GetThreadItem handles fetching a single item with its replies
// GET /api/v1/threads/:kind/:id
func (h *ThreadHandler) GetThreadItem(c *gin.Context) {
	kind, itemID, ok := threadFromPath(c)
	if !ok {
		return
	}

	item, err := h.threadService.Get(c.Request.Context(), kind, itemID, optionalUserID(c))
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Thread item retrieved successfully", gin.H{"item": item})
}

// UpdateThreadItem handles body replacement by the author
// PUT /api/v1/threads/:kind/:id
func (h *ThreadHandler) UpdateThreadItem(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	kind, itemID, ok := threadFromPath(c)
	if !ok {
		return
	}

	var req service.UpdateThreadItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	item, err := h.threadService.Update(c.Request.Context(), kind, itemID, userID.(string), req)
	if err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Thread item updated successfully", gin.H{"item": item})
}

// SoftDeleteThreadItem handles author-only soft deletion
// DELETE /api/v1/threads/:kind/:id
func (h *ThreadHandler) SoftDeleteThreadItem(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	kind, itemID, ok := threadFromPath(c)
	if !ok {
		return
	}

	if err := h.threadService.SoftDelete(c.Request.Context(), kind, itemID, userID.(string)); err != nil {
		util.ErrorResponse(c, apperr.HTTPStatus(err), apperr.Message(err), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Thread item deleted successfully", nil)
}

// --- shared param helpers ---

func targetFromPath(c *gin.Context) (model.TargetRef, bool) {
	kind := model.SubjectKind(c.Param("kind"))
	targetID := c.Param("targetId")
	if !kind.IsValid() {
		util.BadRequest(c, "Unknown subject kind")
		return model.TargetRef{}, false
	}
	if targetID == "" {
		util.BadRequest(c, "Target ID is required")
		return model.TargetRef{}, false
	}
	return model.TargetRef{Kind: kind, ID: targetID}, true
}

func threadFromPath(c *gin.Context) (model.SubjectKind, string, bool) {
	kind := model.SubjectKind(c.Param("kind"))
	itemID := c.Param("id")
	if !kind.IsValid() {
		util.BadRequest(c, "Unknown subject kind")
		return "", "", false
	}
	if itemID == "" {
		util.BadRequest(c, "Thread item ID is required")
		return "", "", false
	}
	return kind, itemID, true
}

func pageParams(c *gin.Context) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		util.BadRequest(c, "Invalid page")
		return 0, 0, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(service.DefaultPageSize)))
	if err != nil || size < 1 {
		util.BadRequest(c, "Invalid size")
		return 0, 0, false
	}
	if size > service.MaxPageSize {
		size = service.MaxPageSize
	}
	return page, size, true
}

func optionalUserID(c *gin.Context) string {
	if v, exists := c.Get("userID"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
