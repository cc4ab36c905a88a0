package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

const maxResponseBytes = 1 << 20

var (
	confirmedStatuses = map[string]bool{"success": true, "successful": true, "completed": true, "delivered": true}
	declinedStatuses  = map[string]bool{"failed": true, "declined": true, "rejected": true, "cancelled": true}
	reversedStatuses  = map[string]bool{"reversed": true, "refunded": true}
)

// HTTPConfig describes one JSON-over-HTTP provider account.
type HTTPConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPGateway speaks a small JSON contract:
//
//	POST {base}/purchases            {reference, kind, amount, recipient, params}
//	GET  {base}/purchases/{ref}      status lookup
//
// and classifies every reply into an Outcome. Anything it cannot classify is Ambiguous.
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
	log    *zap.Logger
}

func NewHTTPGateway(cfg HTTPConfig, logger *zap.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.With(zap.String("provider", cfg.Name)),
	}
}

func (g *HTTPGateway) Name() string { return g.cfg.Name }

type purchaseBody struct {
	Reference string            `json:"reference"`
	Kind      string            `json:"kind"`
	Amount    string            `json:"amount"`
	Recipient string            `json:"recipient"`
	Params    map[string]string `json:"params,omitempty"`
}

type providerReply struct {
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	Reference         string `json:"reference"`
	Message           string `json:"message"`
}

func (g *HTTPGateway) Fulfill(ctx context.Context, req FulfillRequest) (Result, error) {
	body, err := json.Marshal(purchaseBody{
		Reference: req.Reference,
		Kind:      string(req.Kind),
		Amount:    domain.FormatAmount(req.Amount),
		Recipient: req.Recipient,
		Params:    req.Params,
	})
	if err != nil {
		return Result{Outcome: Ambiguous}, fmt.Errorf("encode purchase: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("purchases"), bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Ambiguous}, fmt.Errorf("build purchase request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	return g.do(httpReq, false)
}

func (g *HTTPGateway) Status(ctx context.Context, kind domain.Kind, reference string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("purchases", reference), nil)
	if err != nil {
		return Result{Outcome: Ambiguous}, fmt.Errorf("build status request: %w", err)
	}
	return g.do(httpReq, true)
}

func (g *HTTPGateway) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}

func (g *HTTPGateway) do(req *http.Request, lookup bool) (Result, error) {
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("provider call failed", zap.String("url", req.URL.Path), zap.Error(err))
		return Result{Outcome: Ambiguous}, fmt.Errorf("%s: %w", g.cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Outcome: Ambiguous}, fmt.Errorf("%s: read response: %w", g.cfg.Name, err)
	}
	res := classify(resp.StatusCode, raw, lookup)
	g.log.Debug("provider replied",
		zap.String("url", req.URL.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// classify maps an HTTP reply to an Outcome. Server errors, throttling and
// unparseable bodies never count as a decline: the provider may have done the work.
func classify(code int, raw []byte, lookup bool) Result {
	res := Result{Outcome: Ambiguous}
	if json.Valid(raw) {
		res.Payload = append(json.RawMessage(nil), raw...)
	}

	var reply providerReply
	parsed := json.Unmarshal(raw, &reply) == nil
	if parsed {
		res.ExternalReference = reply.ProviderReference
		if res.ExternalReference == "" {
			res.ExternalReference = reply.Reference
		}
		res.Message = reply.Message
	}

	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code == http.StatusConflict:
		return res
	case lookup && code == http.StatusNotFound:
		return res
	case !parsed:
		return res
	}

	status := strings.ToLower(strings.TrimSpace(reply.Status))
	switch {
	case code >= 400:
		res.Outcome = Declined
	case confirmedStatuses[status]:
		res.Outcome = Confirmed
	case declinedStatuses[status]:
		res.Outcome = Declined
	case lookup && reversedStatuses[status]:
		res.Outcome = Reversed
	}
	return res
}

var _ Gateway = (*HTTPGateway)(nil)
