package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

// HTTPVerifier looks up a deposit at the payment processor:
//
//	GET {base}/transactions/verify?reference={ref}
//	{"status": "successful", "amount": "5000.00", "meta": {"owner_id": "u1"}}
type HTTPVerifier struct {
	baseURL string
	secret  string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPVerifier(baseURL, secret string, timeout time.Duration, logger *zap.Logger) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		log:     logger.Named("payment_verifier"),
	}
}

type verifyReply struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	Meta   struct {
		OwnerID string `json:"owner_id"`
	} `json:"meta"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, reference string) (Verification, error) {
	endpoint := v.baseURL + "/transactions/verify?reference=" + url.QueryEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verification{State: PaymentUnknown}, err
	}
	req.Header.Set("Authorization", "Bearer "+v.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Verification{State: PaymentUnknown}, fmt.Errorf("verify %s: %w", reference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Verification{State: PaymentUnknown}, fmt.Errorf("verify %s: read response: %w", reference, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusNotFound {
		return Verification{State: PaymentUnknown}, nil
	}

	var reply verifyReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		v.log.Warn("unparseable verification reply", zap.String("reference", reference), zap.Error(err))
		return Verification{State: PaymentUnknown}, nil
	}

	amount, ok := domain.MinorUnits(reply.Amount)
	if !ok {
		v.log.Warn("unusable amount in verification reply", zap.String("reference", reference), zap.Stringer("amount", reply.Amount))
		return Verification{State: PaymentUnknown}, nil
	}
	out := Verification{
		State:   PaymentUnknown,
		Amount:  amount,
		OwnerID: reply.Meta.OwnerID,
		Payload: append(json.RawMessage(nil), raw...),
	}
	switch strings.ToLower(reply.Status) {
	case "successful", "success", "completed", "paid":
		out.State = PaymentPaid
	case "failed", "cancelled", "abandoned", "reversed":
		out.State = PaymentFailed
	}
	return out, nil
}

var _ PaymentVerifier = (*HTTPVerifier)(nil)
