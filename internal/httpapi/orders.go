package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"orderdesk/backend/internal/domain"
)

const ordersPrefix = "/api/v1/orders/"

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	resp, err := a.service.GetSellableMenu(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	resp, err := a.service.ListIngredientStock(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit := parsePositiveLimit(query.Get("limit"), 100, 500)
		resp, err := a.service.ListOrders(r.Context(), query.Get("store_id"), query.Get("date"), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.SubmitOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.SubmitOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusCreated
		if resp.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, resp)
	default:
		writeMethodNotAllowed(w, r)
	}
}

// handleOrderActions serves /orders/{id}, /orders/{id}/cancel and
// /orders/idempotency/{key}.
func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, ordersPrefix), "/")
	if rest == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("transaction id required"))
		return
	}

	switch {
	case strings.HasPrefix(rest, "idempotency/"):
		a.handleOrderLookup(w, r, strings.TrimPrefix(rest, "idempotency/"))
	case strings.HasSuffix(rest, "/cancel"):
		a.handleOrderCancel(w, r, strings.TrimSuffix(rest, "/cancel"))
	case !strings.Contains(rest, "/"):
		a.handleOrderDetail(w, r, rest)
	default:
		writeError(w, r, http.StatusNotFound, errors.New("unknown order action"))
	}
}

func (a *API) handleOrderLookup(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	resp, err := a.service.LookupOrderByIdempotency(r.Context(), r.URL.Query().Get("store_id"), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOrderDetail(w http.ResponseWriter, r *http.Request, transactionID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	tx, err := a.service.GetOrder(r.Context(), transactionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleOrderCancel(w http.ResponseWriter, r *http.Request, transactionID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" || strings.Contains(transactionID, "/") {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid transaction id"))
		return
	}

	var req domain.CancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow("pin:cancel:" + clientKey(r)) {
		writeError(w, r, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, r, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}
	req.TransactionID = transactionID

	tx, err := a.service.CancelOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}
