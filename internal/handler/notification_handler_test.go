package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
)

func TestNotificationHandler_List(t *testing.T) {
	t.Run("unread only", func(t *testing.T) {
		svc := new(MockNotificationService)
		svc.On("List", mock.Anything, true, 10).Return([]model.Notification{
			{ID: 1, Title: "Price drop", Message: "Arc'teryx Beta Jacket dropped 25%"},
		}, nil)

		rr := httptest.NewRecorder()
		NewNotificationHandler(svc).List(rr, httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true&limit=10", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Beta Jacket")
		svc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		svc := new(MockNotificationService)
		svc.On("List", mock.Anything, false, 0).Return([]model.Notification{}, nil)

		rr := httptest.NewRecorder()
		NewNotificationHandler(svc).List(rr, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("store error", func(t *testing.T) {
		svc := new(MockNotificationService)
		svc.On("List", mock.Anything, false, 0).Return(nil, errors.New("boom"))

		rr := httptest.NewRecorder()
		NewNotificationHandler(svc).List(rr, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "boom")
	})
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         string
		setupMock  func(*MockNotificationService)
		wantStatus int
	}{
		{
			name: "success",
			id:   "4",
			setupMock: func(m *MockNotificationService) {
				m.On("MarkRead", mock.Anything, int64(4)).Return(nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name: "not found",
			id:   "5",
			setupMock: func(m *MockNotificationService) {
				m.On("MarkRead", mock.Anything, int64(5)).Return(apperror.NotFound("notification"))
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid id",
			id:         "-1",
			setupMock:  func(m *MockNotificationService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := new(MockNotificationService)
			tt.setupMock(svc)

			req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/notifications/"+tt.id+"/read", nil), "id", tt.id)
			rr := httptest.NewRecorder()
			NewNotificationHandler(svc).MarkRead(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestNotificationHandler_MarkAllReadAndCount(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("MarkAllRead", mock.Anything).Return(int64(3), nil)
	svc.On("UnreadCount", mock.Anything).Return(0, nil)
	h := NewNotificationHandler(svc)

	rr := httptest.NewRecorder()
	h.MarkAllRead(rr, httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil))
	assert.JSONEq(t, `{"updated":3}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.UnreadCount(rr, httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil))
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler_Check(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(stubPinger{}).Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	NewHealthHandler(stubPinger{err: errors.New("refused")}).Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
