package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (a *API) respondCart(w http.ResponseWriter, r *http.Request, status int, cart domain.Cart, err error) {
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, status, cartFrom(cart))
}

func (a *API) createCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.carts.Create(r.Context())
	if err == nil {
		w.Header().Set("Location", "/v1/carts/"+cart.UUID)
	}
	a.respondCart(w, r, http.StatusCreated, cart, err)
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.carts.Get(r.Context(), chi.URLParam(r, "uuid"))
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := a.carts.Delete(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.AddItem(r.Context(), chi.URLParam(r, "uuid"), req.ProductID, req.Qty)
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.UpdateItem(r.Context(), chi.URLParam(r, "uuid"), chi.URLParam(r, "productID"), req.Qty)
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) removeItem(w http.ResponseWriter, r *http.Request) {
	cart, err := a.carts.RemoveItem(r.Context(), chi.URLParam(r, "uuid"), chi.URLParam(r, "productID"))
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.ApplyCoupon(r.Context(), chi.URLParam(r, "uuid"), req.Code)
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) removeCoupon(w http.ResponseWriter, r *http.Request) {
	cart, err := a.carts.RemoveCoupon(r.Context(), chi.URLParam(r, "uuid"))
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) setUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.SetUser(r.Context(), chi.URLParam(r, "uuid"), domain.CartCustomer{
		ID:       req.ID,
		Email:    req.Email,
		Name:     req.Name,
		Document: req.Document,
		Phone:    req.Phone,
	})
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) setShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.SetShipping(r.Context(), chi.URLParam(r, "uuid"), req.Address.domain(), req.ServiceCode)
	a.respondCart(w, r, http.StatusOK, cart, err)
}

func (a *API) setPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	cart, err := a.carts.SetPayment(r.Context(), chi.URLParam(r, "uuid"), domain.CartPayment{
		Gateway:      req.Gateway,
		Method:       domain.PaymentMethod(req.Method),
		Installments: req.Installments,
		CardToken:    req.CardToken,
		CardBrand:    req.CardBrand,
	})
	a.respondCart(w, r, http.StatusOK, cart, err)
}

// checkout отвечает 202: заказ создаётся в фоне, статус доступен в /v1/checkout-jobs/{id}.
func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	job, err := a.carts.Checkout(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	w.Header().Set("Location", "/v1/checkout-jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, checkoutJobFrom(job))
}

func (a *API) getCheckoutJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.carts.CheckoutJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutJobFrom(job))
}
