package freight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

func TestPackageMetrics_StacksAndClamps(t *testing.T) {
	pkg := PackageMetrics([]domain.CartItem{
		{ProductID: "book", Qty: 2, WeightGrams: 400, LengthCm: 23, WidthCm: 16, HeightCm: 3},
		{ProductID: "game", Qty: 1, WeightGrams: 900, LengthCm: 30, WidthCm: 30, HeightCm: 8},
	})

	assert.Equal(t, int32(1700), pkg.WeightGrams)
	assert.Equal(t, int32(30), pkg.LengthCm)
	assert.Equal(t, int32(30), pkg.WidthCm)
	assert.Equal(t, int32(14), pkg.HeightCm)
	// 30·30·14/6000 кг = 2.1 кг.
	assert.Equal(t, int32(2100), VolumetricGrams(pkg))
	assert.Equal(t, int32(2100), BillableGrams(pkg))
}

func TestPackageMetrics_MinimumsAndMaximums(t *testing.T) {
	tiny := PackageMetrics([]domain.CartItem{{Qty: 1, WeightGrams: 50, LengthCm: 5, WidthCm: 5, HeightCm: 1}})
	assert.Equal(t, domain.Package{WeightGrams: 300, LengthCm: 16, WidthCm: 11, HeightCm: 2}, tiny)

	tall := PackageMetrics([]domain.CartItem{{Qty: 40, WeightGrams: 100, LengthCm: 120, WidthCm: 20, HeightCm: 5}})
	assert.Equal(t, int32(100), tall.LengthCm)
	assert.Equal(t, int32(100), tall.HeightCm)

	empty := PackageMetrics(nil)
	assert.Equal(t, int32(300), empty.WeightGrams)
}

func newCorreiosServer(t *testing.T, price, deadline string, calls *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/preco/v1/nacional/03220":
			assert.Equal(t, "01310100", r.URL.Query().Get("cepOrigem"))
			assert.Equal(t, "20040002", r.URL.Query().Get("cepDestino"))
			assert.Equal(t, "2100", r.URL.Query().Get("psObjeto"))
			assert.Equal(t, "150,00", r.URL.Query().Get("vlDeclarado"))
			_, _ = w.Write([]byte(price))
		case "/prazo/v1/nacional/03220":
			_, _ = w.Write([]byte(deadline))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testRequest() domain.FreightRequest {
	return domain.FreightRequest{
		DestinationZip: "20040-002",
		ServiceCode:    domain.FreightServiceSEDEX,
		Package:        domain.Package{WeightGrams: 1700, LengthCm: 30, WidthCm: 30, HeightCm: 14},
		DeclaredMinor:  15000,
	}
}

func TestCorreios_Quote(t *testing.T) {
	var calls int32
	srv := newCorreiosServer(t,
		`{"coProduto":"03220","pcFinal":"1.025,50"}`,
		`{"coProduto":"03220","prazoEntrega":3}`, &calls)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	gw := metrics.NewGatewayMetrics(reg)
	client, err := NewCorreios(CorreiosConfig{BaseURL: srv.URL, Token: "token-1", OriginZip: "01310-100"}, WithMetrics(gw))
	require.NoError(t, err)

	quote, err := client.Quote(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(102550), quote.PriceMinor)
	assert.Equal(t, 3, quote.DeliveryDays)
	assert.Equal(t, domain.FreightServiceSEDEX, quote.ServiceCode)
	assert.WithinDuration(t, time.Now(), quote.QuotedAt, time.Minute)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	count, err := testutil.GatherAndCount(reg, "storefront_gateway_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCorreios_QuoteErrorsAreUnavailable(t *testing.T) {
	cases := map[string]struct {
		price    string
		deadline string
	}{
		"api error":  {price: `{"txErro":"CEP de destino invalido"}`, deadline: `{"prazoEntrega":3}`},
		"bad price":  {price: `{"pcFinal":"abc"}`, deadline: `{"prazoEntrega":3}`},
		"bad json":   {price: `not json`, deadline: `{"prazoEntrega":3}`},
		"prazo fail": {price: `{"pcFinal":"10,00"}`, deadline: `{"txErro":"indisponivel"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newCorreiosServer(t, tc.price, tc.deadline, nil)
			defer srv.Close()

			client, err := NewCorreios(CorreiosConfig{BaseURL: srv.URL, Token: "token-1", OriginZip: "01310100"})
			require.NoError(t, err)

			_, err = client.Quote(context.Background(), testRequest())
			assert.ErrorIs(t, err, domain.ErrFreightUnavailable)
			assert.True(t, domain.IsTemporary(err))
		})
	}
}

func TestCorreios_HTTPFailure(t *testing.T) {
	srv := newCorreiosServer(t, "{}", "{}", nil)
	defer srv.Close()

	client, err := NewCorreios(CorreiosConfig{BaseURL: srv.URL, Token: "wrong", OriginZip: "01310100"})
	require.NoError(t, err)

	_, err = client.Quote(context.Background(), testRequest())
	assert.ErrorIs(t, err, domain.ErrFreightUnavailable)
}

func TestCorreios_ValidatesZip(t *testing.T) {
	_, err := NewCorreios(CorreiosConfig{OriginZip: "123"})
	assert.ErrorIs(t, err, domain.ErrZipCodeInvalid)

	client, err := NewCorreios(CorreiosConfig{OriginZip: "01310100"})
	require.NoError(t, err)
	req := testRequest()
	req.DestinationZip = "abc"
	_, err = client.Quote(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrZipCodeInvalid)
}

func TestFlatRate_Quote(t *testing.T) {
	flat := NewFlatRate(DefaultFlatRate)

	req := testRequest()
	req.ServiceCode = domain.FreightServicePAC
	quote, err := flat.Quote(context.Background(), req)
	require.NoError(t, err)
	// 2.1 кг → 3 начатых килограмма.
	assert.Equal(t, int64(1500+3*500), quote.PriceMinor)
	assert.Equal(t, 7, quote.DeliveryDays)

	req.ServiceCode = domain.FreightServiceSEDEX
	express, err := flat.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), express.PriceMinor)
	assert.Equal(t, 2, express.DeliveryDays)
}
