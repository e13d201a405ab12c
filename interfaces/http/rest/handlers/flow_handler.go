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

// FlowHandler handles flow container requests
type FlowHandler struct {
	flows  *services.FlowService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewFlowHandler creates a flow handler
func NewFlowHandler(flows *services.FlowService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{
		flows:  flows,
		errors: errors,
		logger: logger,
	}
}

// CreateFlowRequest is the request body for creating a flow
type CreateFlowRequest struct {
	WorkspaceID string `json:"workspaceId" validate:"required"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
}

// Create handles POST /flows
func (h *FlowHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req CreateFlowRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	flow, err := h.flows.Create(r.Context(), req.WorkspaceID, req.Name, user.UserID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, flow)
}

// Get handles GET /flows/{flowID}
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, flow)
}

// List handles GET /flows?workspaceId=...
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("workspaceId query parameter is required"))
		return
	}

	flows, err := h.flows.List(r.Context(), workspaceID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, flows)
}

// Delete handles DELETE /flows/{flowID}
func (h *FlowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.flows.Delete(r.Context(), chi.URLParam(r, "flowID"), user.UserID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
