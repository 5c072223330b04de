package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/domain"
)

// handlePaymentMethods serves the cached list; ?refresh=1 reloads it from
// the backend first.
func (a *API) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" {
		writeJSON(w, http.StatusOK, a.service.RefreshPaymentMethods(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, a.service.ListPaymentMethods(r.Context()))
}

func (a *API) handleMedicineSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	writeJSON(w, http.StatusOK, a.service.SearchMedicines(r.Context(), query.Get("q"), strings.TrimSpace(query.Get("location"))))
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionCreateRequest
	if !a.decodeOptional(w, r, &req) {
		return
	}
	view := a.service.CreateSession(r.Context(), req)
	writeJSON(w, http.StatusCreated, map[string]any{"session": decorateView(view)})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.Customer
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Customer details arrive while being typed, so only the email format is
	// checked here. Name and phone are enforced when payment starts.
	if err := a.validate.Var(req.Email, "omitempty,email"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"email": "email"},
		})
		return
	}
	view, err := a.service.SetCustomer(r.Context(), chi.URLParam(r, "sessionID"), req)
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	view, err := a.service.AddItem(r.Context(), chi.URLParam(r, "sessionID"), req)
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleUpdateQty(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateQtyRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	view, err := a.service.UpdateQty(r.Context(), chi.URLParam(r, "sessionID"), domain.ID(chi.URLParam(r, "productID")), req.Delta)
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveItem(r.Context(), chi.URLParam(r, "sessionID"), domain.ID(chi.URLParam(r, "productID")))
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.StartPayment(r.Context(), chi.URLParam(r, "sessionID"))
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleSelectMethod(w http.ResponseWriter, r *http.Request) {
	var req domain.SelectMethodRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	view, err := a.service.SelectPaymentMethod(r.Context(), chi.URLParam(r, "sessionID"), req.PaymentMethodID)
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleCashTender(w http.ResponseWriter, r *http.Request) {
	var req domain.CashTenderRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	view, err := a.service.SetCashTendered(r.Context(), chi.URLParam(r, "sessionID"), req.Tendered)
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ConfirmPayment(r.Context(), chi.URLParam(r, "sessionID"))
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.CancelPayment(r.Context(), chi.URLParam(r, "sessionID"))
	a.writeSession(w, http.StatusOK, view, err)
}

func (a *API) handlePaymentQR(w http.ResponseWriter, r *http.Request) {
	size := parsePositiveLimit(r.URL.Query().Get("size"), 256, 1024)
	png, err := a.service.PaymentQRCode(r.Context(), chi.URLParam(r, "sessionID"), size)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) handleHoldSession(w http.ResponseWriter, r *http.Request) {
	var req domain.HoldSessionRequest
	if !a.decodeOptional(w, r, &req) {
		return
	}
	held, err := a.service.HoldSession(r.Context(), chi.URLParam(r, "sessionID"), req.Note)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"held_cart": held})
}

func (a *API) handleListHeld(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := a.service.ListHeldCarts(r.Context(), query.Get("location_id"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.HeldCartListResponse{Items: items})
}

func (a *API) handleResumeHeld(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ResumeHeldCart(r.Context(), chi.URLParam(r, "holdID"))
	a.writeSession(w, http.StatusCreated, view, err)
}

func (a *API) handleDiscardHeld(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardHeldCart(r.Context(), chi.URLParam(r, "holdID")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSession responds with the session view. Failed payment steps still
// carry the view so the terminal can render the state it fell back to.
func (a *API) writeSession(w http.ResponseWriter, status int, view domain.SessionView, err error) {
	if err == nil {
		writeJSON(w, status, map[string]any{"session": decorateView(view)})
		return
	}

	errStatus, msg := classifyError(err)
	if errStatus >= http.StatusInternalServerError {
		a.logger.WithError(err).WithField("session_id", view.ID).Error("billing request failed")
	}
	body := map[string]any{"error": msg}
	if view.ID != "" {
		body["session"] = decorateView(view)
	}
	writeJSON(w, errStatus, body)
}

func decorateView(view domain.SessionView) domain.SessionView {
	if view.UPI != nil {
		view.UPI.QRCodePath = "/api/v1/billing/sessions/" + view.ID + "/payment/qr.png"
	}
	if view.Lines == nil {
		view.Lines = []domain.CartLine{}
	}
	return view
}
