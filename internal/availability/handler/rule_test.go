package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carecal/internal/availability/repository"
	"carecal/internal/availability/service"
	"carecal/internal/availability/validator"
	"carecal/internal/events"
	"carecal/internal/slots/materializer"
	slotsrepository "carecal/internal/slots/repository"
	"carecal/pkg/config"
	mongotx "carecal/pkg/db/mongo"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/lock"
	"carecal/pkg/logger"
	"carecal/pkg/middleware"
	"carecal/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = model.Actor{ID: "prov-1", Role: model.ActorProvider}

const ruleBody = `{
	"title": "Morning consults",
	"recurrence_kind": "WEEKLY",
	"day_of_week": 1,
	"start_date": "2024-01-01",
	"start_time": "09:00",
	"end_time": "11:00",
	"slot_duration_minutes": 30,
	"time_zone": "UTC",
	"location_kind": "VIRTUAL",
	"appointment_kind": "CONSULTATION",
	"allow_online_booking": true
}`

func newRouter(t *testing.T) *httprouter.Router {
	t.Helper()
	cfg := &config.Config{Log: logger.Nop(), MaterializeDays: 14}
	clock := func() time.Time { return time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC) }
	slots := slotsrepository.NewMemorySlotRepository()

	svc := service.NewRuleService(service.Dependencies{
		Rules:        repository.NewMemoryRuleRepository(),
		Slots:        slots,
		Materializer: materializer.New(slots, materializer.PolicyDisable, cfg.Log).WithClock(clock),
		Validator:    validator.NewRuleValidator(cfg.Log),
		Locker:       lock.NewLocalProviderLocker(time.Second),
		Tx:           mongotx.NewDirectTransactionManager(),
		Emitter:      events.Discard(),
		Now:          clock,
	}, cfg)

	router := httprouter.New()
	NewRuleHandler(svc, logger.Nop()).RegisterRoutes(router)
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

func decodeRule(t *testing.T, rec *httptest.ResponseRecorder) model.AvailabilityRule {
	t.Helper()
	var body struct {
		Data model.AvailabilityRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRuleHandler_CreateAndGet(t *testing.T) {
	router := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeRule(t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "prov-1", created.ProviderID)
	assert.True(t, created.IsActive)

	rec = do(router, http.MethodGet, "/api/v1/rules/"+created.ID, "", model.Actor{ID: "pat-1", Role: model.ActorPatient})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Title, decodeRule(t, rec).Title)

	rec = do(router, http.MethodGet, "/api/v1/rules/missing", "", owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleHandler_CreateRejections(t *testing.T) {
	router := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, model.Actor{ID: "prov-2", Role: model.ActorProvider})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", `{"title":"x","unknown":1}`, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	invalid := strings.Replace(ruleBody, `"end_time": "11:00"`, `"end_time": "08:00"`, 1)
	rec = do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", invalid, owner)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeValidation, body.Code)
	assert.Contains(t, body.Details, "end_time")

	rec = do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, owner)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeConflict, decodeError(t, rec).Code)
}

func TestRuleHandler_UpdateAndToggle(t *testing.T) {
	router := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeRule(t, rec).ID

	rec = do(router, http.MethodPatch, "/api/v1/rules/"+id, `{"title":"Late consults","end_time":"12:00"}`, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeRule(t, rec)
	assert.Equal(t, "Late consults", updated.Title)
	assert.Equal(t, "12:00", updated.EndTime)

	rec = do(router, http.MethodPost, "/api/v1/rules/"+id+"/deactivate", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeRule(t, rec).IsActive)

	rec = do(router, http.MethodGet, "/api/v1/providers/prov-1/rules?active=true", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/api/v1/providers/prov-1/rules?active=maybe", "", owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/rules/"+id+"/activate", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeRule(t, rec).IsActive)
}

func TestRuleHandler_Statistics(t *testing.T) {
	router := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/providers/prov-1/rules", ruleBody, owner)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodGet, "/api/v1/providers/prov-1/statistics?from=2024-01-01&to=2024-01-31", "",
		model.Actor{ID: "prov-2", Role: model.ActorProvider})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodGet, "/api/v1/providers/prov-1/statistics?from=2024-01-01&to=2024-01-31", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data model.ProviderStatistics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	// Two Mondays in the initial window, four slots each.
	assert.Equal(t, int64(8), body.Data.Total)
	assert.Equal(t, int64(8), body.Data.Available)

	rec = do(router, http.MethodGet, "/api/v1/providers/prov-1/statistics?from=2024-01-31&to=2024-01-01", "", owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
