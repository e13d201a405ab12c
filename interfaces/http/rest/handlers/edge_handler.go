package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flopods-backend/application/services"
	"flopods-backend/pkg/auth"
	"flopods-backend/pkg/common"
	pkgerrors "flopods-backend/pkg/errors"
	"flopods-backend/pkg/utils"
)

// EdgeHandler handles edge requests
type EdgeHandler struct {
	canvas *services.CanvasService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewEdgeHandler creates an edge handler
func NewEdgeHandler(canvas *services.CanvasService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *EdgeHandler {
	return &EdgeHandler{
		canvas: canvas,
		errors: errors,
		logger: logger,
	}
}

// CreateEdgeRequest is the request body for connecting two pods
type CreateEdgeRequest struct {
	SourceID string `json:"sourceId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
}

// Create handles POST /flows/{flowID}/edges
func (h *EdgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req CreateEdgeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	edge, err := h.canvas.CreateEdge(r.Context(), chi.URLParam(r, "flowID"), req.SourceID, req.TargetID, user.UserID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, edge)
}

// Delete handles DELETE /flows/{flowID}/edges/{edgeID}
func (h *EdgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.canvas.DeleteEdge(r.Context(), chi.URLParam(r, "flowID"), chi.URLParam(r, "edgeID"), user.UserID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
