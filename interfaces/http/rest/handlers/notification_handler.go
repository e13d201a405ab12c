package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flopods-backend/application/services"
	"flopods-backend/pkg/auth"
	"flopods-backend/pkg/common"
	pkgerrors "flopods-backend/pkg/errors"
)

// NotificationHandler handles per-user notification requests
type NotificationHandler struct {
	notifications *services.NotificationService
	errors        *pkgerrors.ErrorHandler
	logger        *zap.Logger
}

// NewNotificationHandler creates a notification handler
func NewNotificationHandler(notifications *services.NotificationService, errors *pkgerrors.ErrorHandler, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		errors:        errors,
		logger:        logger,
	}
}

// notificationListResponse is one page of notifications
type notificationListResponse struct {
	Notifications interface{} `json:"notifications"`
	NextCursor    string      `json:"nextCursor,omitempty"`
}

// List handles GET /notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	page, err := h.notifications.List(r.Context(), user.UserID, pageFromQuery(r, "limit", "cursor", 50))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, notificationListResponse{
		Notifications: page.Notifications,
		NextCursor:    page.NextCursor,
	})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	count, err := h.notifications.UnreadCount(r.Context(), user.UserID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead handles POST /notifications/{notificationID}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.notifications.MarkRead(r.Context(), user.UserID, chi.URLParam(r, "notificationID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.notifications.MarkAllRead(r.Context(), user.UserID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /notifications/{notificationID}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return
	}

	if err := h.notifications.Delete(r.Context(), user.UserID, chi.URLParam(r, "notificationID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
