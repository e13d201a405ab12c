// Package handlers holds the HTTP handlers for the canvas API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/application/services"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/pkg/auth"
	"flopods-backend/pkg/common"
	pkgerrors "flopods-backend/pkg/errors"
	"flopods-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// PodHandler handles pod editing requests
type PodHandler struct {
	canvas *services.CanvasService
	mover  *services.MoveService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewPodHandler creates a pod handler
func NewPodHandler(canvas *services.CanvasService, mover *services.MoveService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *PodHandler {
	return &PodHandler{
		canvas: canvas,
		mover:  mover,
		errors: errors,
		logger: logger,
	}
}

// CreatePodRequest is the request body for creating a pod
type CreatePodRequest struct {
	WorkspaceID string                  `json:"workspaceId" validate:"required"`
	Content     valueobjects.PodContent `json:"content" validate:"required"`
	Position    valueobjects.Position   `json:"position"`
	ContextPods []string                `json:"contextPods,omitempty" validate:"omitempty,max=50"`
}

// UpdatePodRequest is the request body for a partial pod update. Omitted
// fields are left untouched; version is the one the client last saw.
type UpdatePodRequest struct {
	Version     int                      `json:"version" validate:"required,min=1"`
	Content     *valueobjects.PodContent `json:"content,omitempty"`
	Position    *valueobjects.Position   `json:"position,omitempty"`
	ContextPods []string                 `json:"contextPods,omitempty" validate:"omitempty,max=50"`
}

// MovePodRequest is the request body for relocating a pod across flows
type MovePodRequest struct {
	TargetFlowID        string `json:"targetFlowId" validate:"required"`
	Version             int    `json:"version" validate:"required,min=1"`
	SessionID           string `json:"sessionId" validate:"required"`
	LinkToPodID         string `json:"linkToPodId,omitempty"`
	DeleteSourceIfEmpty bool   `json:"deleteSourceIfEmpty,omitempty"`
}

// LockRequest identifies the session taking or dropping a pod lock
type LockRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// Create handles POST /flows/{flowID}/pods
func (h *PodHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req CreatePodRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	pod, err := h.canvas.CreatePod(r.Context(), services.CreatePodInput{
		FlowID:      chi.URLParam(r, "flowID"),
		WorkspaceID: req.WorkspaceID,
		UserID:      user.UserID,
		Content:     req.Content,
		Position:    req.Position,
		ContextPods: req.ContextPods,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, pod)
}

// Get handles GET /flows/{flowID}/pods/{podID}
func (h *PodHandler) Get(w http.ResponseWriter, r *http.Request) {
	pod, err := h.canvas.GetPod(r.Context(), chi.URLParam(r, "flowID"), chi.URLParam(r, "podID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, pod)
}

// Update handles PUT /flows/{flowID}/pods/{podID}
func (h *PodHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req UpdatePodRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	pod, err := h.canvas.UpdatePod(r.Context(), services.UpdatePodInput{
		FlowID:          chi.URLParam(r, "flowID"),
		PodID:           chi.URLParam(r, "podID"),
		UserID:          user.UserID,
		ExpectedVersion: req.Version,
		Content:         req.Content,
		Position:        req.Position,
		ContextPods:     req.ContextPods,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, pod)
}

// Delete handles DELETE /flows/{flowID}/pods/{podID}
func (h *PodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.canvas.DeletePod(r.Context(), chi.URLParam(r, "flowID"), chi.URLParam(r, "podID"), user.UserID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move handles POST /pods/{podID}/move
func (h *PodHandler) Move(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req MovePodRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.mover.Move(r.Context(), services.MoveInput{
		PodID:               chi.URLParam(r, "podID"),
		TargetFlowID:        req.TargetFlowID,
		ExpectedVersion:     req.Version,
		Holder:              req.SessionID,
		UserID:              user.UserID,
		LinkToPodID:         req.LinkToPodID,
		DeleteSourceIfEmpty: req.DeleteSourceIfEmpty,
	})
	if err != nil {
		// A non-empty source aborts only the cleanup. The move stands, so
		// the caller gets the result with a conflict status.
		if result != nil && pkgerrors.IsInvariantViolation(err) {
			common.RespondJSON(w, http.StatusConflict, result)
			return
		}
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// Lock handles POST /pods/{podID}/lock
func (h *PodHandler) Lock(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req LockRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	pod, err := h.canvas.LockPod(r.Context(), chi.URLParam(r, "podID"), req.SessionID, user.UserID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, pod)
}

// Unlock handles DELETE /pods/{podID}/lock
func (h *PodHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req LockRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	if err := h.canvas.UnlockPod(r.Context(), chi.URLParam(r, "podID"), req.SessionID, user.UserID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageFromQuery reads limit and cursor query parameters
func pageFromQuery(r *http.Request, limitParam, cursorParam string, defaultLimit int) ports.Page {
	page := ports.Page{
		Limit:  defaultLimit,
		Cursor: r.URL.Query().Get(cursorParam),
	}
	if raw := r.URL.Query().Get(limitParam); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Limit = n
		}
	}
	return page
}

// canvasResponse is the wire shape of one canvas page
type canvasResponse struct {
	Pods           interface{} `json:"pods"`
	Edges          interface{} `json:"edges"`
	PodsNextCursor string      `json:"podsNextCursor,omitempty"`
	EdgeNextCursor string      `json:"edgesNextCursor,omitempty"`
}

// Canvas handles GET /flows/{flowID}/canvas
func (h *PodHandler) Canvas(w http.ResponseWriter, r *http.Request) {
	podPage := pageFromQuery(r, "podLimit", "podCursor", 100)
	edgePage := pageFromQuery(r, "edgeLimit", "edgeCursor", 200)

	canvas, err := h.canvas.ListCanvas(r.Context(), chi.URLParam(r, "flowID"), podPage, edgePage)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, canvasResponse{
		Pods:           canvas.Pods,
		Edges:          canvas.Edges,
		PodsNextCursor: canvas.PodsNextCursor,
		EdgeNextCursor: canvas.EdgeNextCursor,
	})
}
