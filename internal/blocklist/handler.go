package blocklist

import (
	"github.com/gin-gonic/gin"
	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/middleware"
)

// Handler handles HTTP requests for user blocks.
type Handler struct {
	repo  *Repository
	cache *Cache
}

// NewHandler creates a new block-list handler.
func NewHandler(repo *Repository, cache *Cache) *Handler {
	return &Handler{repo: repo, cache: cache}
}

// RegisterRoutes registers block routes on an authenticated router group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	blocks := router.Group("/blocks")
	{
		blocks.GET("", h.List)
		blocks.POST("/:id", h.Block)
		blocks.DELETE("/:id", h.Unblock)
	}
}

// List returns every user blocked with respect to the caller.
func (h *Handler) List(c *gin.Context) {
	userID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}

	blocked, err := h.repo.ListBlocked(c.Request.Context(), userID)
	if common.HandleServiceError(c, err, "failed to list blocks") {
		return
	}

	common.SuccessResponse(c, gin.H{"blocked": blocked})
}

// Block records a block against another user and drops both cache entries so
// the relation takes effect on the next filter pass.
func (h *Handler) Block(c *gin.Context) {
	userID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	otherID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}
	if otherID == userID {
		common.AppErrorResponse(c, common.NewValidationError("cannot block yourself"))
		return
	}

	if err := h.repo.Block(c.Request.Context(), userID, otherID); err != nil {
		common.HandleServiceError(c, err, "failed to block user")
		return
	}

	h.cache.Invalidate(c.Request.Context(), userID)
	h.cache.Invalidate(c.Request.Context(), otherID)

	common.SuccessResponse(c, gin.H{"blocked": true})
}

// Unblock removes the caller's block on another user.
func (h *Handler) Unblock(c *gin.Context) {
	userID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	otherID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}

	if err := h.repo.Unblock(c.Request.Context(), userID, otherID); err != nil {
		common.HandleServiceError(c, err, "failed to unblock user")
		return
	}

	h.cache.Invalidate(c.Request.Context(), userID)
	h.cache.Invalidate(c.Request.Context(), otherID)

	common.SuccessResponse(c, gin.H{"blocked": false})
}
