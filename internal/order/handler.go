package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/realtime"
	"pizzeria-be/internal/utils"

	"go.uber.org/zap"
)

type createResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order"`
}

type legacyResponse struct {
	Status string `json:"status"`
	Data   *Order `json:"data"`
}

type Handler struct {
	svc Service
	now func() time.Time
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidStatus):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrOrderNotFound):
		utils.WriteJSONError(w, ErrOrderNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, ErrDuplicateOrder), errors.Is(err, ErrIllegalTransition):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
	default:
		logger.FromCtx(r.Context()).Error("order request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "failed to process order", http.StatusInternalServerError)
	}
}

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in PlaceOrderInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.svc.PlaceOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, createResponse{Success: true, ID: o.DBID})
}

// LegacyWebhook handles POST /webhook-n8n. Old clients may omit the order
// token, so one is generated for them.
func (h *Handler) LegacyWebhook(w http.ResponseWriter, r *http.Request) {
	var in PlaceOrderInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = utils.GenerateOrderToken(h.now())
	}

	o, err := h.svc.PlaceOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, legacyResponse{Status: "success", Data: o})
}

// List handles GET /orders with an optional ?status= filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.Status = &st
	}

	orders, err := h.svc.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

// UpdateStatus handles PATCH /orders/{token}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var in StatusInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.svc.ChangeStatus(r.Context(), token, in.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Order: o})
}

// InboundRouter is the part of the realtime hub that accepts client events.
type InboundRouter interface {
	Handle(event string, requireAuth bool, fn realtime.InboundHandler)
}

type updateStatusEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RegisterRealtime routes the authenticated update_status and
// confirm_delivery socket events through the service.
func (h *Handler) RegisterRealtime(router InboundRouter) {
	router.Handle(realtime.InboundUpdateStatus, true, func(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
		var ev updateStatusEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.ID == "" {
			return realtime.NewClientError("expected {id, status}")
		}
		_, err := h.svc.ChangeStatus(ctx, ev.ID, ev.Status)
		return clientError(err)
	})

	router.Handle(realtime.InboundConfirmDelivery, true, func(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
		var token string
		if err := json.Unmarshal(data, &token); err != nil || token == "" {
			return realtime.NewClientError("expected an order id")
		}
		_, err := h.svc.ChangeStatus(ctx, token, string(StatusDelivered))
		return clientError(err)
	})
}

// clientError exposes domain failures to the socket sender and leaves
// anything else opaque.
func clientError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderNotFound):
		return realtime.NewClientError(ErrOrderNotFound.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrIllegalTransition):
		return realtime.NewClientError(err.Error())
	default:
		return err
	}
}
