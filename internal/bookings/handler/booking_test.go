package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carecal/internal/bookings/service"
	"carecal/internal/bookings/validator"
	"carecal/internal/events"
	slotsrepository "carecal/internal/slots/repository"
	slotsservice "carecal/internal/slots/service"
	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/lock"
	"carecal/pkg/logger"
	"carecal/pkg/middleware"
	"carecal/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules map[string]*model.AvailabilityRule

func (r staticRules) GetByID(_ context.Context, id string) (*model.AvailabilityRule, error) {
	if rule, ok := r[id]; ok {
		return rule, nil
	}
	return nil, apperrors.NotFoundWithID("Availability rule", id)
}

func newRouter(t *testing.T) *httprouter.Router {
	t.Helper()
	cfg := &config.Config{Log: logger.Nop()}
	startsAt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return startsAt.Add(-72 * time.Hour) }

	repo := slotsrepository.NewMemorySlotRepository()
	slot := &model.Slot{
		ID:              "slot-1",
		RuleID:          "rule-1",
		ProviderID:      "prov-1",
		Date:            "2024-03-04",
		StartTime:       "09:00",
		EndTime:         "09:30",
		TimeZone:        "UTC",
		StartsAt:        startsAt,
		DurationMinutes: 30,
		Status:          model.SlotAvailable,
	}
	slot.Refresh()
	_, err := repo.InsertIfAbsent(context.Background(), slot)
	require.NoError(t, err)

	svc := service.NewBookingService(service.Dependencies{
		Slots: slotsservice.NewSlotServiceWithClock(repo, events.Discard(), cfg, clock),
		Rules: staticRules{"rule-1": {
			ID:                    "rule-1",
			ProviderID:            "prov-1",
			IsActive:              true,
			AllowOnlineBooking:    true,
			MaxAdvanceBookingDays: 30,
		}},
		Validator: validator.NewBookingValidator(cfg.Log),
		Locker:    lock.NewLocalProviderLocker(time.Second),
		Now:       clock,
	}, cfg)

	router := httprouter.New()
	NewBookingHandler(svc, logger.Nop()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, target, body string, actor model.Actor) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(middleware.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSlot(t *testing.T, rec *httptest.ResponseRecorder) model.Slot {
	t.Helper()
	var body struct {
		Data model.Slot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestBookingHandler_BookCancelRebook(t *testing.T) {
	router := newRouter(t)
	alice := model.Actor{ID: "pat-1", Role: model.ActorPatient, BookingAllowed: true}
	bob := model.Actor{ID: "pat-2", Role: model.ActorPatient, BookingAllowed: true}

	rec := do(router, http.MethodPost, "/api/v1/slots/slot-1/bookings", "", alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, model.SlotBooked, decodeSlot(t, rec).Status)

	rec = do(router, http.MethodPost, "/api/v1/slots/slot-1/bookings", `{"patient_id":"pat-2"}`, bob)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeSlotUnavailable)

	rec = do(router, http.MethodPost, "/api/v1/slots/slot-1/cancel", `{"reason":"travel"}`, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeSlot(t, rec)
	assert.Equal(t, model.SlotCancelled, cancelled.Status)
	assert.Equal(t, "travel", cancelled.CancellationReason)

	rec = do(router, http.MethodPost, "/api/v1/slots/slot-1/bookings", "", bob)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pat-2", decodeSlot(t, rec).PatientID)
}

func TestBookingHandler_Errors(t *testing.T) {
	router := newRouter(t)
	provider := model.Actor{ID: "prov-1", Role: model.ActorProvider}

	rec := do(router, http.MethodPost, "/api/v1/slots/slot-1/bookings", `{"patient":"x"}`,
		model.Actor{ID: "pat-1", Role: model.ActorPatient, BookingAllowed: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/slots/slot-1/bookings", "",
		model.Actor{ID: "pat-1", Role: model.ActorPatient})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/slots/slot-1/confirm", "", provider)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeInvalidTransition)

	rec = do(router, http.MethodPost, "/api/v1/slots/missing/cancel", "", provider)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
