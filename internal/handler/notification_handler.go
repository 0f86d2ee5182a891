package handler

import (
	"net/http"
)

type NotificationHandler struct {
	service NotificationServiceInterface
}

func NewNotificationHandler(svc NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications
// @Description Dashboard notifications, newest first
// @Tags notifications
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Param limit query int false "Number of results" default(50)
// @Success 200 {array} model.Notification
// @Failure 400 {object} ErrorResponse
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	notifications, err := h.service.List(r.Context(), queryBool(r, "unread"), limit)
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch notifications")
		return
	}
	respondJSON(w, http.StatusOK, notifications)
}

// UnreadCount godoc
// @Summary Unread notification count
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to count notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags notifications
// @Param id path int true "Notification ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.service.MarkRead(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "failed to update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead godoc
// @Summary Mark every notification read
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkAllRead(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to update notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
