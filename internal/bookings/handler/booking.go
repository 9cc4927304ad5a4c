package handler

import (
	"net/http"

	"carecal/internal/bookings/service"
	httputil "carecal/pkg/http"
	"carecal/pkg/logger"
	"carecal/pkg/middleware"
	"carecal/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.BookingRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		h.writeError(w, "Book", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.BookSlot(r.Context(), actor, ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Book", err)
		return
	}

	if err := httputil.WriteCreated(w, slot); err != nil {
		h.log.Error("failed to write created response", "handler", "Book", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.CancellationRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.CancelBooking(r.Context(), actor, ps.ByName("id"), &req)
	h.respond(w, "Cancel", slot, err)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, _ := middleware.ActorFrom(r.Context())
	slot, err := h.service.ConfirmBooking(r.Context(), actor, ps.ByName("id"))
	h.respond(w, "Confirm", slot, err)
}

func (h *BookingHandler) respond(w http.ResponseWriter, handler string, slot *model.Slot, err error) {
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/slots/:id/bookings", h.Book)
	router.POST("/api/v1/slots/:id/cancel", h.Cancel)
	router.POST("/api/v1/slots/:id/confirm", h.Confirm)
}
