package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/breederbook/scheduling/services/booking-service/internal/localtime"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

type SettingsStore interface {
	Get(ctx context.Context, breederID string) (*model.SchedulingSettings, error)
	Save(ctx context.Context, s *model.SchedulingSettings) error
}

type SettingsHandler struct {
	store    SettingsStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSettingsHandler(store SettingsStore, logger *slog.Logger) *SettingsHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := localtime.ParseClock(fl.Field().String())
		return err == nil
	})
	return &SettingsHandler{store: store, validate: v, logger: logger}
}

type windowDTO struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

type appointmentTypeDTO struct {
	ID                  string `json:"id,omitempty"`
	Name                string `json:"name" validate:"required,max=120"`
	DurationMinutes     int    `json:"duration_minutes" validate:"required,gt=0,lte=480"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes" validate:"gte=0,lte=240"`
	BufferAfterMinutes  int    `json:"buffer_after_minutes" validate:"gte=0,lte=240"`
	Enabled             bool   `json:"enabled"`
	DisplayOrder        int    `json:"display_order"`
}

type settingsDTO struct {
	Timezone            string                 `json:"timezone" validate:"required,timezone"`
	Weekly              map[string][]windowDTO `json:"weekly" validate:"dive,dive"`
	MinAdvanceHours     int                    `json:"min_advance_hours" validate:"gte=0"`
	MaxAdvanceDays      int                    `json:"max_advance_days" validate:"gt=0,lte=365"`
	SlotIntervalMinutes int                    `json:"slot_interval_minutes" validate:"oneof=15 30 60"`
	AutoConfirm         bool                   `json:"auto_confirm"`
	AppointmentTypes    []appointmentTypeDTO   `json:"appointment_types" validate:"dive"`
	SyncEnabled         bool                   `json:"sync_enabled"`
	CalendarID          string                 `json:"calendar_id,omitempty"`
	ICSFeedURL          string                 `json:"ics_feed_url,omitempty" validate:"omitempty,url"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	breederID := strings.TrimSpace(r.Header.Get(BreederIDHeader))
	if breederID == "" {
		http.Error(w, "breeder header required", http.StatusUnauthorized)
		return
	}
	s, err := h.store.Get(r.Context(), breederID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	breederID := strings.TrimSpace(r.Header.Get(BreederIDHeader))
	if breederID == "" {
		http.Error(w, "breeder header required", http.StatusUnauthorized)
		return
	}

	var dto settingsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_failed"})
		return
	}

	s, err := fromSettingsDTO(breederID, dto)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_failed"})
		return
	}
	if err := s.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_failed"})
		return
	}

	if err := h.store.Save(r.Context(), s); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

// Catalog is the public appointment-type listing a booking page renders.
// Disabled types are omitted; durations are all a customer needs to see.
func (h *SettingsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	breederID := strings.TrimSpace(r.URL.Query().Get("breeder_id"))
	if breederID == "" {
		http.Error(w, "breeder_id is required", http.StatusBadRequest)
		return
	}
	s, err := h.store.Get(r.Context(), breederID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	type catalogItem struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	items := make([]catalogItem, 0, len(s.Types))
	for _, t := range s.EnabledTypes() {
		items = append(items, catalogItem{ID: t.ID, Name: t.Name, DurationMinutes: int(t.Duration.Minutes())})
	}
	writeJSON(w, http.StatusOK, items)
}

func fromSettingsDTO(breederID string, dto settingsDTO) (*model.SchedulingSettings, error) {
	weekly := model.WeeklyAvailability{}
	for name, windows := range dto.Weekly {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		out := make([]model.Window, 0, len(windows))
		for _, w := range windows {
			start, err := localtime.ParseClock(w.Start)
			if err != nil {
				return nil, err
			}
			end, err := localtime.ParseClock(w.End)
			if err != nil {
				return nil, err
			}
			out = append(out, model.Window{Start: start, End: end})
		}
		weekly[day] = out
	}

	types := make([]model.AppointmentType, 0, len(dto.AppointmentTypes))
	for _, t := range dto.AppointmentTypes {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			id = uuid.NewString()
		}
		types = append(types, model.AppointmentType{
			ID:           id,
			BreederID:    breederID,
			Name:         t.Name,
			Duration:     time.Duration(t.DurationMinutes) * time.Minute,
			BufferBefore: time.Duration(t.BufferBeforeMinutes) * time.Minute,
			BufferAfter:  time.Duration(t.BufferAfterMinutes) * time.Minute,
			Enabled:      t.Enabled,
			DisplayOrder: t.DisplayOrder,
		})
	}

	return &model.SchedulingSettings{
		BreederID:    breederID,
		Timezone:     dto.Timezone,
		Weekly:       weekly,
		Types:        types,
		MinAdvance:   time.Duration(dto.MinAdvanceHours) * time.Hour,
		MaxAdvance:   time.Duration(dto.MaxAdvanceDays) * 24 * time.Hour,
		SlotInterval: time.Duration(dto.SlotIntervalMinutes) * time.Minute,
		AutoConfirm:  dto.AutoConfirm,
		SyncEnabled:  dto.SyncEnabled,
		CalendarID:   strings.TrimSpace(dto.CalendarID),
		ICSFeedURL:   strings.TrimSpace(dto.ICSFeedURL),
	}, nil
}

func toSettingsDTO(s *model.SchedulingSettings) settingsDTO {
	weekly := map[string][]windowDTO{}
	for day, windows := range s.Weekly {
		out := make([]windowDTO, 0, len(windows))
		for _, w := range windows {
			out = append(out, windowDTO{Start: w.Start.String(), End: w.End.String()})
		}
		weekly[strings.ToLower(day.String())] = out
	}

	types := make([]appointmentTypeDTO, 0, len(s.Types))
	for _, t := range s.Types {
		types = append(types, appointmentTypeDTO{
			ID:                  t.ID,
			Name:                t.Name,
			DurationMinutes:     int(t.Duration.Minutes()),
			BufferBeforeMinutes: int(t.BufferBefore.Minutes()),
			BufferAfterMinutes:  int(t.BufferAfter.Minutes()),
			Enabled:             t.Enabled,
			DisplayOrder:        t.DisplayOrder,
		})
	}

	return settingsDTO{
		Timezone:            s.Timezone,
		Weekly:              weekly,
		MinAdvanceHours:     int(s.MinAdvance.Hours()),
		MaxAdvanceDays:      int(s.MaxAdvance.Hours() / 24),
		SlotIntervalMinutes: int(s.SlotInterval.Minutes()),
		AutoConfirm:         s.AutoConfirm,
		AppointmentTypes:    types,
		SyncEnabled:         s.SyncEnabled,
		CalendarID:          s.CalendarID,
		ICSFeedURL:          s.ICSFeedURL,
	}
}
