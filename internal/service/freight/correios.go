package freight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	// DefaultCorreiosURL: продовый адрес API Correios.
	DefaultCorreiosURL = "https://api.correios.com.br"

	maxCorreiosResponseSize = 1 << 20
	// tpObjeto=2: pacote/caixa.
	objectTypeBox = "2"
)

// CorreiosConfig: параметры клиента Correios.
type CorreiosConfig struct {
	BaseURL   string
	Token     string
	OriginZip string
	Timeout   time.Duration
}

// Correios считает доставку через API preço/prazo Correios.
type Correios struct {
	cfg     CorreiosConfig
	client  *http.Client
	metrics *metrics.GatewayMetrics
	logger  *log.Entry
	now     func() time.Time
}

// CorreiosOption настраивает клиент.
type CorreiosOption func(*Correios)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) CorreiosOption {
	return func(c *Correios) {
		if client != nil {
			c.client = client
		}
	}
}

// WithMetrics включает метрики вызовов.
func WithMetrics(m *metrics.GatewayMetrics) CorreiosOption {
	return func(c *Correios) { c.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) CorreiosOption {
	return func(c *Correios) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCorreios создаёт клиент; OriginZip обязателен.
func NewCorreios(cfg CorreiosConfig, opts ...CorreiosOption) (*Correios, error) {
	origin, err := domain.NormalizeZipCode(cfg.OriginZip)
	if err != nil {
		return nil, fmt.Errorf("correios origin zip: %w", err)
	}
	cfg.OriginZip = origin
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCorreiosURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Correios{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.New().WithField("component", "correios"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type correiosPrice struct {
	ServiceCode string `json:"coProduto"`
	FinalPrice  string `json:"pcFinal"`
	Error       string `json:"txErro"`
}

type correiosDeadline struct {
	ServiceCode  string `json:"coProduto"`
	DeliveryDays int    `json:"prazoEntrega"`
	Error        string `json:"txErro"`
}

// Quote запрашивает цену и срок параллельно. Любая ошибка API оборачивается в ErrFreightUnavailable.
func (c *Correios) Quote(ctx context.Context, req domain.FreightRequest) (quote domain.FreightQuote, err error) {
	defer c.metrics.Observe("correios", "quote", time.Now(), &err)

	service := req.ServiceCode
	if service == "" {
		service = domain.FreightServicePAC
	}
	origin := c.cfg.OriginZip
	if req.OriginZip != "" {
		if origin, err = domain.NormalizeZipCode(req.OriginZip); err != nil {
			return domain.FreightQuote{}, err
		}
	}
	destination, err := domain.NormalizeZipCode(req.DestinationZip)
	if err != nil {
		return domain.FreightQuote{}, err
	}

	priceQuery := url.Values{}
	priceQuery.Set("cepOrigem", origin)
	priceQuery.Set("cepDestino", destination)
	priceQuery.Set("psObjeto", strconv.Itoa(int(BillableGrams(req.Package))))
	priceQuery.Set("tpObjeto", objectTypeBox)
	priceQuery.Set("comprimento", strconv.Itoa(int(req.Package.LengthCm)))
	priceQuery.Set("largura", strconv.Itoa(int(req.Package.WidthCm)))
	priceQuery.Set("altura", strconv.Itoa(int(req.Package.HeightCm)))
	if req.DeclaredMinor > 0 {
		priceQuery.Set("vlDeclarado", strings.Replace(domain.MinorToDecimal(req.DeclaredMinor).StringFixed(2), ".", ",", 1))
	}

	deadlineQuery := url.Values{}
	deadlineQuery.Set("cepOrigem", origin)
	deadlineQuery.Set("cepDestino", destination)

	var (
		price    correiosPrice
		deadline correiosDeadline
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, "/preco/v1/nacional/"+url.PathEscape(service), priceQuery, &price)
	})
	g.Go(func() error {
		return c.get(gctx, "/prazo/v1/nacional/"+url.PathEscape(service), deadlineQuery, &deadline)
	})
	if err := g.Wait(); err != nil {
		return domain.FreightQuote{}, err
	}

	if price.Error != "" {
		return domain.FreightQuote{}, fmt.Errorf("%w: %s", domain.ErrFreightUnavailable, price.Error)
	}
	if deadline.Error != "" {
		return domain.FreightQuote{}, fmt.Errorf("%w: %s", domain.ErrFreightUnavailable, deadline.Error)
	}
	priceMinor, err := domain.ParseLocalizedAmount(price.FinalPrice)
	if err != nil {
		return domain.FreightQuote{}, fmt.Errorf("%w: price %q: %v", domain.ErrFreightUnavailable, price.FinalPrice, err)
	}

	quote = domain.FreightQuote{
		ServiceCode:  service,
		PriceMinor:   priceMinor,
		DeliveryDays: deadline.DeliveryDays,
		QuotedAt:     c.now(),
	}
	c.logger.WithFields(log.Fields{
		"service":       service,
		"destination":   destination,
		"price_minor":   priceMinor,
		"delivery_days": deadline.DeliveryDays,
	}).Debug("freight quoted")
	return quote, nil
}

func (c *Correios) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("correios: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrFreightUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCorreiosResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrFreightUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s returned HTTP %d: %s", domain.ErrFreightUnavailable, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrFreightUnavailable, path, err)
	}
	return nil
}

var _ domain.FreightQuoter = (*Correios)(nil)
