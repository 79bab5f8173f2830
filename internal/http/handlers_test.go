package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/persistence"
	"github.com/example/delivery-availability/internal/testfixtures"
)

type scheduleStore struct {
	mu     sync.Mutex
	byUser map[string]application.AvailabilitySchedule
}

func newScheduleStore() *scheduleStore {
	return &scheduleStore{byUser: make(map[string]application.AvailabilitySchedule)}
}

func (s *scheduleStore) GetScheduleByUserID(ctx context.Context, userID string) (application.AvailabilitySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.byUser[userID]
	if !ok {
		return application.AvailabilitySchedule{}, persistence.ErrNotFound
	}
	schedule.Schedule = schedule.Clone()
	return schedule, nil
}

func (s *scheduleStore) SaveSchedule(ctx context.Context, schedule application.AvailabilitySchedule) (application.AvailabilitySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.Schedule = schedule.Clone()
	s.byUser[schedule.UserID] = schedule
	return schedule, nil
}

func (s *scheduleStore) ListSchedules(ctx context.Context) ([]application.AvailabilitySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]application.AvailabilitySchedule, 0, len(s.byUser))
	for _, schedule := range s.byUser {
		schedule.Schedule = schedule.Clone()
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(ctx context.Context) error { return p.err }

type apiHarness struct {
	t      *testing.T
	router http.Handler
}

func newAPIHarness(t *testing.T, health Pinger) *apiHarness {
	t.Helper()
	factory := testfixtures.NewServiceFactory(
		testfixtures.WithClock(testfixtures.NewClock(testfixtures.ReferenceTime())),
	)
	service := factory.NewAvailabilityService(testfixtures.AvailabilityServiceDeps{
		Schedules:    newScheduleStore(),
		Logger:       zap.NewNop(),
		MaxRangeDays: 62,
	})
	router := NewRouter(RouterConfig{
		Availability: NewAvailabilityHandler(service, zap.NewNop()),
		Health:       health,
		Logger:       zap.NewNop(),
	})
	return &apiHarness{t: t, router: router}
}

type caller struct {
	userID string
	admin  bool
}

var (
	courier = caller{userID: "courier-1"}
	admin   = caller{userID: "dispatcher-1", admin: true}
)

func (h *apiHarness) do(who caller, method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if who.userID != "" {
		req.Header.Set(HeaderUserID, who.userID)
	}
	if who.admin {
		req.Header.Set(HeaderUserRole, "admin")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestAvailabilityHandlers(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without identity", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(caller{}, http.MethodGet, "/availability/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("creates an empty schedule on first read", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodGet, "/availability/me", "")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[scheduleDTO](t, rec)
		assert.Equal(t, "courier-1", body.UserID)
		assert.NotEmpty(t, body.ID)
		assert.Len(t, body.WeeklySchedule, 7)
		assert.False(t, body.WeeklySchedule["MONDAY"].Working)
		assert.Empty(t, body.MonthlySchedule)
	})

	t.Run("weekly edit drives availability checks", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodPut, "/availability/me/days/monday", `{"working":true,"start_time":"09:00","end_time":"17:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody[scheduleDTO](t, rec)
		require.NotNil(t, body.WeeklySchedule["MONDAY"].StartTime)
		assert.Equal(t, "09:00", *body.WeeklySchedule["MONDAY"].StartTime)

		rec = api.do(courier, http.MethodGet, "/availability/me/check?at=2024-03-11T09:00", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[checkResponse](t, rec).Available)

		rec = api.do(courier, http.MethodGet, "/availability/me/check?at=2024-03-11T17:00", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decodeBody[checkResponse](t, rec).Available)
	})

	t.Run("date override takes precedence and can be cleared", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		require.Equal(t, http.StatusOK, api.do(courier, http.MethodPut, "/availability/me/days/MONDAY", `{"working":true,"start_time":"09:00","end_time":"17:00"}`).Code)
		rec := api.do(courier, http.MethodPut, "/availability/me/dates/2024-03-11", `{"working":false,"start_time":"09:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		override := decodeBody[scheduleDTO](t, rec).MonthlySchedule["2024-03-11"]
		assert.False(t, override.Working)
		assert.Nil(t, override.StartTime)

		rec = api.do(courier, http.MethodGet, "/availability/me/check?at=2024-03-11T10:00", "")
		assert.False(t, decodeBody[checkResponse](t, rec).Available)

		rec = api.do(courier, http.MethodDelete, "/availability/me/dates/2024-03-11", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[scheduleDTO](t, rec).MonthlySchedule)

		rec = api.do(courier, http.MethodGet, "/availability/me/check?at=2024-03-11T10:00", "")
		assert.True(t, decodeBody[checkResponse](t, rec).Available)
	})

	t.Run("reports body validation by field", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodPut, "/availability/me/dates/2024-03-11", `{"start_time":"09:00"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "is required", decodeBody[errorResponse](t, rec).Errors["working"])

		rec = api.do(courier, http.MethodPut, "/availability/me/dates/2024-03-11", `{"working":true,"start_time":"18:00","end_time":"09:00"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, "end_time")

		rec = api.do(courier, http.MethodPut, "/availability/me/dates/11-03-2024", `{"working":false}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, "date")

		rec = api.do(courier, http.MethodPut, "/availability/me", `{"weekly_schedule":{"MONDAY":{"start_time":"09:00"}}}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "is required", decodeBody[errorResponse](t, rec).Errors["weekly_schedule.MONDAY.working"])
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodPut, "/availability/me/range", `{"start_date":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = api.do(courier, http.MethodPost, "/availability/me/generate", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("range update honours weekday filter", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodPut, "/availability/me/range",
			`{"start_date":"2024-03-01","end_date":"2024-03-31","days_of_week":["SATURDAY","SUNDAY"],"working":true,"start_time":"10:00","end_time":"14:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody[scheduleDTO](t, rec).MonthlySchedule, 10)

		rec = api.do(courier, http.MethodDelete, "/availability/me/range?start_date=2024-03-01&end_date=2024-03-10", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody[scheduleDTO](t, rec).MonthlySchedule, 6)

		rec = api.do(courier, http.MethodPut, "/availability/me/range",
			`{"start_date":"2024-01-01","end_date":"2024-12-31","working":false}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, "end_date")
	})

	t.Run("generates a month from the weekly pattern", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		require.Equal(t, http.StatusOK, api.do(courier, http.MethodPut, "/availability/me/days/FRIDAY", `{"working":true,"start_time":"08:00","end_time":"12:00"}`).Code)
		rec := api.do(courier, http.MethodPost, "/availability/me/generate", `{"month":"2024-02"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		monthly := decodeBody[scheduleDTO](t, rec).MonthlySchedule
		assert.Len(t, monthly, 29)
		assert.True(t, monthly["2024-02-02"].Working)
		assert.False(t, monthly["2024-02-03"].Working)

		rec = api.do(courier, http.MethodPost, "/availability/me/generate", `{"month":"February"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, "month")

		rec = api.do(courier, http.MethodDelete, "/availability/me/overrides", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[scheduleDTO](t, rec).MonthlySchedule)
	})

	t.Run("calendar marks overridden dates", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		require.Equal(t, http.StatusOK, api.do(courier, http.MethodPut, "/availability/me/dates/2024-03-12", `{"working":true,"start_time":"06:00","end_time":"10:00"}`).Code)
		rec := api.do(courier, http.MethodGet, "/availability/me/calendar?start_date=2024-03-11&end_date=2024-03-13", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody[calendarResponse](t, rec)
		require.Len(t, body.Days, 3)
		assert.Equal(t, "courier-1", body.UserID)
		assert.Equal(t, "MONDAY", body.Days[0].DayOfWeek)
		assert.False(t, body.Days[0].Overridden)
		assert.True(t, body.Days[1].Overridden)
		require.NotNil(t, body.Days[1].StartTime)
		assert.Equal(t, "06:00", *body.Days[1].StartTime)
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()

	t.Run("require administrator role", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(courier, http.MethodGet, "/admin/availability/users/courier-2", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = api.do(courier, http.MethodGet, "/admin/availability/available?at=2024-03-11T10:00", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("edit another user and find who is available", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(admin, http.MethodPut, "/admin/availability/users/courier-7/dates/2024-03-11", `{"working":true,"start_time":"09:00","end_time":"12:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "courier-7", decodeBody[scheduleDTO](t, rec).UserID)

		rec = api.do(admin, http.MethodPut, "/admin/availability/users/courier-3/days/MONDAY", `{"working":true,"start_time":"11:00","end_time":"15:00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = api.do(admin, http.MethodGet, "/admin/availability/available?at=2024-03-11T10:30", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"courier-7"}, decodeBody[availableResponse](t, rec).UserIDs)

		rec = api.do(admin, http.MethodGet, "/admin/availability/available?at=2024-03-11T11:30", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"courier-3", "courier-7"}, decodeBody[availableResponse](t, rec).UserIDs)

		rec = api.do(admin, http.MethodGet, "/admin/availability/users/courier-7/check?at=2024-03-11T12:00", "")
		require.Equal(t, http.StatusOK, rec.Code)
		check := decodeBody[checkResponse](t, rec)
		assert.Equal(t, "courier-7", check.UserID)
		assert.False(t, check.Available)
	})

	t.Run("missing instant is a validation error", func(t *testing.T) {
		t.Parallel()
		api := newAPIHarness(t, nil)

		rec := api.do(admin, http.MethodGet, "/admin/availability/available", "")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "is required", decodeBody[errorResponse](t, rec).Errors["at"])
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := newAPIHarness(t, pingerStub{}).do(caller{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = newAPIHarness(t, pingerStub{err: errors.New("database is locked")}).do(caller{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody[healthResponse](t, rec).Status)
}

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	responder := newResponder(nil)
	cases := []struct {
		err    error
		status int
	}{
		{application.ErrUnauthorized, http.StatusForbidden},
		{application.ErrNotFound, http.StatusNotFound},
		{application.ErrConflict, http.StatusConflict},
		{&application.ValidationError{FieldErrors: map[string]string{"date": "is required"}}, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		responder.handleServiceError(context.Background(), rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}
