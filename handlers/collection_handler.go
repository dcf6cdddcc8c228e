package handlers

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/collections-worker/internal/repository"
	"github.com/onurcolak/collections-worker/internal/timeline"
	"github.com/onurcolak/collections-worker/pkg/response"
	"github.com/onurcolak/collections-worker/pkg/validator"
)

type timelineReader interface {
	GetTimeline(ctx context.Context, collectionID string) (*timeline.Timeline, error)
}

type CollectionHandler struct {
	timelines timelineReader
}

func NewCollectionHandler(timelines timelineReader) *CollectionHandler {
	return &CollectionHandler{timelines: timelines}
}

type CollectionPathRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

// GetTimeline returns every step of the collection's playbook with its sent,
// scheduled or projected date.
func (h *CollectionHandler) GetTimeline(c echo.Context) error {
	var req CollectionPathRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	t, err := h.timelines.GetTimeline(c.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "Collection not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, t)
}
