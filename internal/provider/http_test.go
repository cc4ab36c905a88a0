package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		body   string
		lookup bool
		want   Outcome
	}{
		{"success", 200, `{"status":"successful","provider_reference":"p-1"}`, false, Confirmed},
		{"explicit decline", 200, `{"status":"failed","message":"invalid number"}`, false, Declined},
		{"still processing", 200, `{"status":"processing"}`, false, Ambiguous},
		{"client error", 400, `{"status":"error","message":"bad plan"}`, false, Declined},
		{"server error", 502, `{"status":"failed"}`, false, Ambiguous},
		{"throttled", 429, `{}`, false, Ambiguous},
		{"html body", 200, `<html>oops</html>`, false, Ambiguous},
		{"reversal on lookup", 200, `{"status":"reversed"}`, true, Reversed},
		{"reversal on purchase is not trusted", 200, `{"status":"reversed"}`, false, Ambiguous},
		{"unknown on lookup", 404, `{"status":"not_found"}`, true, Ambiguous},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := classify(tc.code, []byte(tc.body), tc.lookup)
			assert.Equal(t, tc.want, res.Outcome)
		})
	}
}

func TestHTTPGatewayFulfill(t *testing.T) {
	var got purchaseBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/purchases", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "ref-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","provider_reference":"INL-99"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPConfig{Name: "inlomax", BaseURL: srv.URL + "/", APIKey: "secret"}, nil)
	assert.Equal(t, "inlomax", g.Name())
	res, err := g.Fulfill(context.Background(), FulfillRequest{
		Reference: "ref-1",
		Kind:      domain.KindData,
		Amount:    30000,
		Recipient: "08030000000",
		Params:    map[string]string{"plan": "1GB"},
	})
	require.NoError(t, err)
	assert.Equal(t, Confirmed, res.Outcome)
	assert.Equal(t, "INL-99", res.ExternalReference)
	assert.JSONEq(t, `{"status":"success","provider_reference":"INL-99"}`, string(res.Payload))

	assert.Equal(t, "300.00", got.Amount)
	assert.Equal(t, "data", got.Kind)
	assert.Equal(t, "1GB", got.Params["plan"])
}

func TestHTTPGatewayTimeoutIsAmbiguous(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	g := NewHTTPGateway(HTTPConfig{Name: "slow", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	res, err := g.Fulfill(context.Background(), FulfillRequest{Reference: "ref-2", Kind: domain.KindAirtime, Amount: 100})
	require.Error(t, err)
	assert.Equal(t, Ambiguous, res.Outcome)
}

func TestHTTPGatewayStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/purchases/ref%2F3", r.URL.EscapedPath())
		w.Write([]byte(`{"status":"completed","reference":"ref/3"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPConfig{Name: "smeplug", BaseURL: srv.URL}, nil)
	res, err := g.Status(context.Background(), domain.KindAirtime, "ref/3")
	require.NoError(t, err)
	assert.Equal(t, Confirmed, res.Outcome)
	assert.Equal(t, "ref/3", res.ExternalReference)
}

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("reference") {
		case "paid":
			w.Write([]byte(`{"status":"successful","amount":"5000.50"}`))
		case "numeric":
			w.Write([]byte(`{"status":"successful","amount":120}`))
		case "owned":
			w.Write([]byte(`{"status":"successful","amount":"10.00","meta":{"owner_id":"u1"}}`))
		case "fractional":
			w.Write([]byte(`{"status":"successful","amount":"10.005"}`))
		case "overflow":
			w.Write([]byte(`{"status":"successful","amount":"184467440737095516.17"}`))
		case "failed":
			w.Write([]byte(`{"status":"failed","amount":"10"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "sk", time.Second, nil)
	ctx := context.Background()

	res, err := v.Verify(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, res.State)
	assert.Equal(t, int64(500050), res.Amount)

	res, err = v.Verify(ctx, "numeric")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), res.Amount)

	res, err = v.Verify(ctx, "owned")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.OwnerID)
	assert.Equal(t, int64(1000), res.Amount)

	for _, ref := range []string{"fractional", "overflow"} {
		res, err = v.Verify(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, PaymentUnknown, res.State, ref)
		assert.Zero(t, res.Amount, ref)
	}

	res, err = v.Verify(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, res.State)

	res, err = v.Verify(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, PaymentUnknown, res.State)
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	airtime := &stubGateway{outcome: Confirmed}
	data := &stubGateway{outcome: Declined}
	r.Register("inlomax", airtime, domain.KindAirtime, domain.KindCable)
	r.Register("smeplug", data, domain.KindData)

	res, err := r.Fulfill(context.Background(), FulfillRequest{Kind: domain.KindData})
	require.NoError(t, err)
	assert.Equal(t, Declined, res.Outcome)

	name, ok := r.ProviderFor(domain.KindCable)
	assert.True(t, ok)
	assert.Equal(t, "inlomax", name)

	_, err = r.Fulfill(context.Background(), FulfillRequest{Kind: domain.KindElectricity})
	assert.ErrorIs(t, err, ErrNoGateway)
}

type stubGateway struct{ outcome Outcome }

func (s *stubGateway) Fulfill(ctx context.Context, req FulfillRequest) (Result, error) {
	return Result{Outcome: s.outcome}, nil
}

func (s *stubGateway) Status(ctx context.Context, kind domain.Kind, reference string) (Result, error) {
	return Result{Outcome: s.outcome}, nil
}
