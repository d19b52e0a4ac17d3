package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/freight"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		CategoryID: q.Get("category_id"),
		Search:     q.Get("q"),
		OnlyActive: q.Get("include_inactive") != "true",
		Limit:      atoiDefault(q.Get("limit"), 0),
		Offset:     atoiDefault(q.Get("offset"), 0),
	}
	products, err := a.catalog.ListProducts(filter)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productFrom(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.catalog.GetProduct(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, productFrom(product))
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.catalog.ListCategories()
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, categoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug, ParentID: c.ParentID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) listCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := a.campaigns.ListActive()
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, campaignFrom(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) getCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := a.campaigns.GetCampaign(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignFrom(campaign))
}

// quoteFreight считает доставку для списка товаров без корзины.
func (a *API) quoteFreight(w http.ResponseWriter, r *http.Request) {
	var req freightQuoteRequest
	if err := a.decode(r, &req, false); err != nil {
		writeValidationError(w, err)
		return
	}
	zip, err := domain.NormalizeZipCode(req.ZipCode)
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	var declared int64
	for _, it := range req.Items {
		product, err := a.catalog.SellableProduct(it.ProductID)
		if err != nil {
			writeDomainError(w, r, a.logger, err)
			return
		}
		items = append(items, domain.CartItem{
			ProductID:   product.ID,
			Qty:         it.Qty,
			PriceMinor:  product.PriceMinor,
			WeightGrams: product.WeightGrams,
			HeightCm:    product.HeightCm,
			WidthCm:     product.WidthCm,
			LengthCm:    product.LengthCm,
		})
		declared += product.PriceMinor * int64(it.Qty)
	}

	service := req.ServiceCode
	if service == "" {
		service = domain.FreightServicePAC
	}
	quote, err := a.freight.Quote(r.Context(), domain.FreightRequest{
		OriginZip:      a.originZip,
		DestinationZip: zip,
		ServiceCode:    service,
		Package:        freight.PackageMetrics(items),
		DeclaredMinor:  declared,
	})
	if err != nil {
		writeDomainError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, freightQuoteResponse{
		ServiceCode:  quote.ServiceCode,
		Price:        moneyOf(quote.PriceMinor),
		DeliveryDays: quote.DeliveryDays,
		QuotedAt:     quote.QuotedAt,
	})
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
