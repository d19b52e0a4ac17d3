package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := a.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDetailsFrom(details))
}

func (a *API) orderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := a.orders.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	resp := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, timelineEventResponse{
			Type:     e.Type,
			Status:   string(e.Status),
			Reason:   e.Reason,
			Occurred: e.Occurred,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) customerOrders(w http.ResponseWriter, r *http.Request) {
	limit := atoiDefault(r.URL.Query().Get("limit"), 0)
	orders, err := a.orders.ListByCustomer(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderFrom(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := a.decode(r, &req, true); err != nil {
		writeValidationError(w, err)
		return
	}
	order, err := a.orders.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderFrom(order))
}

func (a *API) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := a.decode(r, &req, true); err != nil {
		writeValidationError(w, err)
		return
	}
	order, err := a.orders.Refund(r.Context(), chi.URLParam(r, "id"), req.AmountMinor, req.Reason)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderFrom(order))
}

// notificationBody покрывает форматы уведомлений: Stripe (data.object.id),
// Mercado Pago (data.id, числом или строкой) и простой {"external_id": ...}.
type notificationBody struct {
	Type       string `json:"type"`
	ExternalID string `json:"external_id"`
	Data       struct {
		ID     json.RawMessage `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (n notificationBody) externalID() string {
	switch {
	case n.ExternalID != "":
		return n.ExternalID
	case n.Data.Object.ID != "":
		return n.Data.Object.ID
	case len(n.Data.ID) > 0:
		return strings.Trim(string(n.Data.ID), `"`)
	default:
		return ""
	}
}

// paymentNotification не доверяет телу уведомления: состояние платежа перечитывается у шлюза.
func (a *API) paymentNotification(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	var body notificationBody
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body", "INVALID_BODY")
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "cannot parse notification body", "INVALID_JSON")
			return
		}
	}

	externalID := body.externalID()
	if externalID == "" {
		q := r.URL.Query()
		externalID = q.Get("data.id")
		if externalID == "" {
			externalID = q.Get("id")
		}
	}
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "notification has no payment id", "VALIDATION_ERROR")
		return
	}

	order, err := a.orders.AcceptPaymentNotification(r.Context(), gateway, externalID)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	a.logger.WithFields(log.Fields{
		"gateway":     gateway,
		"external_id": externalID,
		"event_type":  body.Type,
		"order_id":    order.ID,
	}).Debug("payment notification processed")
	writeJSON(w, http.StatusOK, map[string]string{"order_id": order.ID, "status": string(order.Status)})
}
