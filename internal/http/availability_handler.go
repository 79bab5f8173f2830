package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/availability"
)

type availabilityService interface {
	GetSchedule(ctx context.Context, target application.ScheduleTarget) (application.AvailabilitySchedule, error)
	SaveSchedule(ctx context.Context, params application.SaveScheduleParams) (application.AvailabilitySchedule, error)
	UpdateDayAvailability(ctx context.Context, params application.UpdateDayParams) (application.AvailabilitySchedule, error)
	UpdateDateAvailability(ctx context.Context, params application.UpdateDateParams) (application.AvailabilitySchedule, error)
	ClearDateAvailability(ctx context.Context, params application.ClearDateParams) (application.AvailabilitySchedule, error)
	UpdateDateRangeAvailability(ctx context.Context, params application.UpdateDateRangeParams) (application.AvailabilitySchedule, error)
	ClearDateRangeAvailability(ctx context.Context, params application.ClearDateRangeParams) (application.AvailabilitySchedule, error)
	GenerateMonthlyFromWeekly(ctx context.Context, params application.GenerateMonthlyParams) (application.AvailabilitySchedule, error)
	ClearMonthlySchedule(ctx context.Context, target application.ScheduleTarget) (application.AvailabilitySchedule, error)
	CheckDateTimeAvailability(ctx context.Context, params application.CheckAvailabilityParams) (application.AvailabilityCheck, error)
	FindAvailableDeliveryPersonsOnDateTime(ctx context.Context, params application.FindAvailableParams) ([]string, error)
	GetEffectiveSchedule(ctx context.Context, params application.EffectiveScheduleParams) ([]availability.ResolvedDay, error)
}

// AvailabilityHandler serves the availability commands. The same handler
// backs /availability/me and the admin /users/{userID} mirror; the target
// comes from the userID path parameter when present.
type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service:   service,
		responder: newResponder(logger),
		validate:  newValidator(),
		logger:    defaultLogger(logger),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *AvailabilityHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AvailabilityHandler) target(r *http.Request) application.ScheduleTarget {
	principal, _ := PrincipalFromContext(r.Context())
	return application.ScheduleTarget{
		Principal: principal,
		UserID:    strings.TrimSpace(chi.URLParam(r, "userID")),
	}
}

// decode reads and validates a JSON body, writing the failure response
// itself. It reports whether the handler should continue.
func (h *AvailabilityHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		} else {
			err = errBadRequestBody
		}
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return false
	}
	if err := h.validate.StructCtx(r.Context(), dst); err != nil {
		handlerLogger(r.Context(), h.logger, "AvailabilityHandler", "decode").Debug("request body rejected", zap.Error(err))
		h.responder.writeValidation(r.Context(), w, err)
		return false
	}
	return true
}

func (h *AvailabilityHandler) renderSchedule(ctx context.Context, w http.ResponseWriter, schedule application.AvailabilitySchedule, err error) {
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *AvailabilityHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	schedule, err := h.service.GetSchedule(r.Context(), h.target(r))
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req saveScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	schedule, err := h.service.SaveSchedule(r.Context(), application.SaveScheduleParams{
		ScheduleTarget: h.target(r),
		Weekly:         toDayInputs(req.WeeklySchedule),
		Overrides:      toDayInputs(req.MonthlySchedule),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) UpdateDay(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req dayRequest
	if !h.decode(w, r, &req) {
		return
	}
	schedule, err := h.service.UpdateDayAvailability(r.Context(), application.UpdateDayParams{
		ScheduleTarget: h.target(r),
		Day:            chi.URLParam(r, "day"),
		Input:          req.toInput(),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) UpdateDate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req dayRequest
	if !h.decode(w, r, &req) {
		return
	}
	schedule, err := h.service.UpdateDateAvailability(r.Context(), application.UpdateDateParams{
		ScheduleTarget: h.target(r),
		Date:           chi.URLParam(r, "date"),
		Input:          req.toInput(),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) ClearDate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	schedule, err := h.service.ClearDateAvailability(r.Context(), application.ClearDateParams{
		ScheduleTarget: h.target(r),
		Date:           chi.URLParam(r, "date"),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) UpdateRange(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req rangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	schedule, err := h.service.UpdateDateRangeAvailability(r.Context(), application.UpdateDateRangeParams{
		ScheduleTarget: h.target(r),
		DateRange:      application.DateRange{StartDate: req.StartDate, EndDate: req.EndDate},
		DaysOfWeek:     req.DaysOfWeek,
		Input:          dayRequest{Working: req.Working, StartTime: req.StartTime, EndTime: req.EndTime}.toInput(),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) ClearRange(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	schedule, err := h.service.ClearDateRangeAvailability(r.Context(), application.ClearDateRangeParams{
		ScheduleTarget: h.target(r),
		DateRange:      spanFromQuery(r),
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	schedule, err := h.service.GenerateMonthlyFromWeekly(r.Context(), application.GenerateMonthlyParams{
		ScheduleTarget: h.target(r),
		DateRange:      application.DateRange{StartDate: req.StartDate, EndDate: req.EndDate},
		Month:          req.Month,
	})
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) ClearOverrides(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	schedule, err := h.service.ClearMonthlySchedule(r.Context(), h.target(r))
	h.renderSchedule(r.Context(), w, schedule, err)
}

func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	check, err := h.service.CheckDateTimeAvailability(r.Context(), application.CheckAvailabilityParams{
		ScheduleTarget: h.target(r),
		At:             r.URL.Query().Get("at"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, checkResponse{
		UserID:    check.UserID,
		At:        check.At.String(),
		Available: check.Available,
	})
}

func (h *AvailabilityHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	target := h.target(r)
	days, err := h.service.GetEffectiveSchedule(r.Context(), application.EffectiveScheduleParams{
		ScheduleTarget: target,
		DateRange:      spanFromQuery(r),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	userID := target.UserID
	if userID == "" {
		userID = target.Principal.UserID
	}
	resp := calendarResponse{UserID: userID, Days: make([]calendarDayDTO, 0, len(days))}
	for _, day := range days {
		entry := toDayDTO(day.Schedule)
		resp.Days = append(resp.Days, calendarDayDTO{
			Date:       day.Date.String(),
			DayOfWeek:  day.Date.DayOfWeek().String(),
			Working:    entry.Working,
			StartTime:  entry.StartTime,
			EndTime:    entry.EndTime,
			Overridden: day.Overridden,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) FindAvailable(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	at := r.URL.Query().Get("at")
	userIDs, err := h.service.FindAvailableDeliveryPersonsOnDateTime(r.Context(), application.FindAvailableParams{
		Principal: principal,
		At:        at,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if userIDs == nil {
		userIDs = []string{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availableResponse{At: strings.TrimSpace(at), UserIDs: userIDs})
}

func spanFromQuery(r *http.Request) application.DateRange {
	query := r.URL.Query()
	return application.DateRange{
		StartDate: query.Get("start_date"),
		EndDate:   query.Get("end_date"),
	}
}

type dayRequest struct {
	Working   *bool  `json:"working" validate:"required"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (r dayRequest) toInput() application.DayInput {
	input := application.DayInput{StartTime: r.StartTime, EndTime: r.EndTime}
	if r.Working != nil {
		input.Working = *r.Working
	}
	return input
}

func toDayInputs(entries map[string]dayRequest) map[string]application.DayInput {
	if entries == nil {
		return nil
	}
	out := make(map[string]application.DayInput, len(entries))
	for key, entry := range entries {
		out[key] = entry.toInput()
	}
	return out
}

type saveScheduleRequest struct {
	WeeklySchedule  map[string]dayRequest `json:"weekly_schedule" validate:"required,dive"`
	MonthlySchedule map[string]dayRequest `json:"monthly_schedule" validate:"omitempty,dive"`
}

type rangeRequest struct {
	StartDate  string   `json:"start_date" validate:"required"`
	EndDate    string   `json:"end_date" validate:"required"`
	DaysOfWeek []string `json:"days_of_week" validate:"omitempty,dive,required"`
	Working    *bool    `json:"working" validate:"required"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
}

type generateRequest struct {
	StartDate string `json:"start_date" validate:"required_without=Month"`
	EndDate   string `json:"end_date" validate:"required_without=Month"`
	Month     string `json:"month" validate:"omitempty,datetime=2006-01"`
}

type dayDTO struct {
	Working   bool    `json:"working"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

func toDayDTO(day availability.DaySchedule) dayDTO {
	dto := dayDTO{Working: day.Working}
	if day.StartTime != nil {
		start := day.StartTime.String()
		dto.StartTime = &start
	}
	if day.EndTime != nil {
		end := day.EndTime.String()
		dto.EndTime = &end
	}
	return dto
}

type scheduleDTO struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	WeeklySchedule  map[string]dayDTO `json:"weekly_schedule"`
	MonthlySchedule map[string]dayDTO `json:"monthly_schedule"`
	CreatedAt       string            `json:"created_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

func toScheduleDTO(schedule application.AvailabilitySchedule) scheduleDTO {
	dto := scheduleDTO{
		ID:              schedule.ID,
		UserID:          schedule.UserID,
		WeeklySchedule:  make(map[string]dayDTO, len(availability.Week)),
		MonthlySchedule: make(map[string]dayDTO, len(schedule.Overrides)),
	}
	for _, day := range availability.Week {
		dto.WeeklySchedule[day.String()] = toDayDTO(schedule.Weekly.Day(day))
	}
	for date, day := range schedule.Overrides {
		dto.MonthlySchedule[date.String()] = toDayDTO(day)
	}
	if !schedule.CreatedAt.IsZero() {
		dto.CreatedAt = schedule.CreatedAt.UTC().Format(timestampLayout)
	}
	if !schedule.UpdatedAt.IsZero() {
		dto.UpdatedAt = schedule.UpdatedAt.UTC().Format(timestampLayout)
	}
	return dto
}

const timestampLayout = "2006-01-02T15:04:05Z07:00"

type checkResponse struct {
	UserID    string `json:"user_id"`
	At        string `json:"at"`
	Available bool   `json:"available"`
}

type availableResponse struct {
	At      string   `json:"at"`
	UserIDs []string `json:"user_ids"`
}

type calendarDayDTO struct {
	Date       string  `json:"date"`
	DayOfWeek  string  `json:"day_of_week"`
	Working    bool    `json:"working"`
	StartTime  *string `json:"start_time,omitempty"`
	EndTime    *string `json:"end_time,omitempty"`
	Overridden bool    `json:"overridden"`
}

type calendarResponse struct {
	UserID string           `json:"user_id"`
	Days   []calendarDayDTO `json:"days"`
}
