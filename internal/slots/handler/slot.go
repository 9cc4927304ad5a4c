package handler

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"carecal/internal/slots/service"
	httputil "carecal/pkg/http"
	"carecal/pkg/logger"
	"carecal/pkg/middleware"
	"carecal/pkg/model"
)

// defaultListDays is the window used when a listing omits "to".
const defaultListDays = 14

type SlotHandler struct {
	service service.SlotService
	log     *logger.Logger
}

func NewSlotHandler(service service.SlotService, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		log:     log,
	}
}

type completeRequest struct {
	Notes           string `json:"notes"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	from, to, err := httputil.ExtractDateRange(r, time.Now().UTC(), defaultListDays)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	filter := model.SlotFilter{
		ProviderID: ps.ByName("provider_id"),
		From:       from,
		To:         to,
	}
	for _, st := range httputil.ExtractList(r, "status") {
		filter.Statuses = append(filter.Statuses, model.SlotStatus(st))
	}

	slots, err := h.service.List(r.Context(), filter, limit, int(offset))
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, slots, int64(len(slots)), limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *SlotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) CheckIn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.CheckIn(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "CheckIn", slot, err)
}

func (h *SlotHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req completeRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		h.writeError(w, "Complete", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.Complete(r.Context(), actor, ps.ByName("id"), req.Notes, req.DurationMinutes)
	h.respond(w, "Complete", slot, err)
}

func (h *SlotHandler) MarkNoShow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.MarkNoShow(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "MarkNoShow", slot, err)
}

func (h *SlotHandler) SendReminder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.SendReminder(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "SendReminder", slot, err)
}

func (h *SlotHandler) respond(w http.ResponseWriter, handler string, slot *model.Slot, err error) {
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/providers/:provider_id/slots", h.List)
	router.GET("/api/v1/slots/:id", h.GetByID)
	router.POST("/api/v1/slots/:id/check-in", h.CheckIn)
	router.POST("/api/v1/slots/:id/complete", h.Complete)
	router.POST("/api/v1/slots/:id/no-show", h.MarkNoShow)
	router.POST("/api/v1/slots/:id/reminder", h.SendReminder)
}
