package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/recents"
)

type addRecentRequest struct {
	ID int64 `json:"id" binding:"required"`
}

func recentsKind(c *gin.Context) (recents.Kind, bool) {
	kind := recents.Kind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Unknown recents list"})
		return "", false
	}
	return kind, true
}

func (a *API) recentsHandler(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	kind, ok := recentsKind(c)
	if !ok {
		return
	}

	ids, err := a.recents.List(c.Request.Context(), userID, kind)
	if err != nil {
		a.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (a *API) addRecentHandler(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	kind, ok := recentsKind(c)
	if !ok {
		return
	}

	var req addRecentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	ids, err := a.recents.Add(c.Request.Context(), userID, kind, req.ID)
	if err != nil {
		a.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}
