package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"carecal/internal/availability/service"
	apperrors "carecal/pkg/errors"
	httputil "carecal/pkg/http"
	"carecal/pkg/logger"
	"carecal/pkg/middleware"
	"carecal/pkg/model"
)

// defaultStatisticsDays is the window used when a statistics query omits "to".
const defaultStatisticsDays = 30

type RuleHandler struct {
	service service.RuleService
	log     *logger.Logger
}

func NewRuleHandler(service service.RuleService, log *logger.Logger) *RuleHandler {
	return &RuleHandler{
		service: service,
		log:     log,
	}
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var rule model.AvailabilityRule
	if err := httputil.DecodeJSON(r, &rule, false); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	created, err := h.service.Create(r.Context(), actor, ps.ByName("provider_id"), &rule)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, created); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *RuleHandler) ListByProvider(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	activeOnly := false
	if s := r.URL.Query().Get("active"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, "ListByProvider", apperrors.InvalidInput("invalid active parameter: "+s))
			return
		}
		activeOnly = v
	}

	rules, err := h.service.ListByProvider(r.Context(), ps.ByName("provider_id"), activeOnly)
	if err != nil {
		h.writeError(w, "ListByProvider", err)
		return
	}

	if err := httputil.WriteSuccess(w, rules); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByProvider", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RuleHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rule, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	h.respond(w, "GetByID", rule, err)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update model.AvailabilityRuleUpdate
	if err := httputil.DecodeJSON(r, &update, false); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	rule, err := h.service.Update(r.Context(), actor, ps.ByName("id"), &update)
	h.respond(w, "Update", rule, err)
}

func (h *RuleHandler) Deactivate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	rule, err := h.service.Deactivate(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "Deactivate", rule, err)
}

func (h *RuleHandler) Activate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	rule, err := h.service.Activate(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "Activate", rule, err)
}

func (h *RuleHandler) Statistics(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	from, to, err := httputil.ExtractDateRange(r, time.Now().UTC(), defaultStatisticsDays)
	if err != nil {
		h.writeError(w, "Statistics", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	stats, err := h.service.Statistics(r.Context(), actor, ps.ByName("provider_id"), from, to)
	if err != nil {
		h.writeError(w, "Statistics", err)
		return
	}

	if err := httputil.WriteSuccess(w, stats); err != nil {
		h.log.Error("failed to write success response", "handler", "Statistics", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RuleHandler) respond(w http.ResponseWriter, handler string, rule *model.AvailabilityRule, err error) {
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, rule); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *RuleHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *RuleHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/providers/:provider_id/rules", h.Create)
	router.GET("/api/v1/providers/:provider_id/rules", h.ListByProvider)
	router.GET("/api/v1/providers/:provider_id/statistics", h.Statistics)
	router.GET("/api/v1/rules/:id", h.GetByID)
	router.PATCH("/api/v1/rules/:id", h.Update)
	router.POST("/api/v1/rules/:id/deactivate", h.Deactivate)
	router.POST("/api/v1/rules/:id/activate", h.Activate)
}
