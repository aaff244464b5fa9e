package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/signature"
)

func paymentRequest() PaymentRequest {
	return PaymentRequest{
		TransactionID: uuid.New(),
		MerchantRef:   "ORD-1",
		Amount:        decimal.RequireFromString("1500.50"),
		Currency:      models.CurrencyNGN,
		CustomerEmail: "ada@example.com",
		PaymentMethod: models.PaymentMethodCard,
	}
}

func TestPaystackInitiatePayment(t *testing.T) {
	var got paystackInitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ORD-1"}}`))
	}))
	defer srv.Close()

	req := paymentRequest()
	p := NewPaystack("sk_test", srv.URL+"/", time.Second)
	res, err := p.InitiatePayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "abc", res.GatewayRef)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.EqualValues(t, 150050, got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, req.TransactionID.String(), got.Reference)
	assert.Equal(t, map[string]string{"merchant_ref": "ORD-1"}, got.Metadata)
	assert.Equal(t, []string{"card"}, got.Channels)
}

func TestPaystackInitiatePaymentFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"http error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"rejected": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
		},
		"no url": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":true,"data":{}}`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			p := NewPaystack("sk_test", srv.URL, 50*time.Millisecond)
			_, err := p.InitiatePayment(context.Background(), paymentRequest())
			assert.Error(t, err)
		})
	}
}

func TestPaystackInitiatePaymentTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the connection is closed after fewer bytes than announced
		w.Header().Set("Content-Length", "200")
		_, _ = w.Write([]byte(`{"status":true,"data":{"authorization_url":`))
	}))
	defer srv.Close()

	p := NewPaystack("sk_test", srv.URL, time.Second)
	_, err := p.InitiatePayment(context.Background(), paymentRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paystack response read")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPaystackParseWebhook(t *testing.T) {
	p := NewPaystack("sk", "http://unused", time.Second)

	n, err := p.ParseWebhook([]byte(`{"event":"charge.success","data":{"reference":"ORD-1","status":"success"}}`))
	require.NoError(t, err)
	assert.Equal(t, Notice{Reference: "ORD-1", RawStatus: "success", Status: models.StatusCompleted}, n)

	n, err = p.ParseWebhook([]byte(`{"data":{"reference":"ORD-1","status":"FAILED"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, n.Status)

	n, err = p.ParseWebhook([]byte(`{"data":{"reference":"ORD-1","status":"abandoned"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status)

	_, err = p.ParseWebhook([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = p.ParseWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestFlutterwaveSandbox(t *testing.T) {
	f := NewFlutterwave("flw", "https://mock.flutterwave.com/v3/")

	res, err := f.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://mock.flutterwave.com/v3/"+res.GatewayRef, res.AuthorizationURL)
	_, err = uuid.Parse(res.GatewayRef)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.InitiatePayment(ctx, paymentRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlutterwaveParseWebhook(t *testing.T) {
	f := NewFlutterwave("flw", "https://mock")

	n, err := f.ParseWebhook([]byte(`{"status":"successful","txRef":"ORD-2","flwRef":"FLW-9"}`))
	require.NoError(t, err)
	assert.Equal(t, Notice{Reference: "ORD-2", GatewayRef: "FLW-9", RawStatus: "successful", Status: models.StatusCompleted}, n)

	n, err = f.ParseWebhook([]byte(`{"event":"charge.completed","data":{"status":"failed","tx_ref":"ORD-3","flw_ref":"FLW-3"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-3", n.Reference)
	assert.Equal(t, models.StatusFailed, n.Status)

	n, err = f.ParseWebhook([]byte(`{"status":"success","txRef":"ORD-4"}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status, "only 'successful' completes a Flutterwave charge")

	_, err = f.ParseWebhook([]byte(`{"status":"successful"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestVerifySignatureUsesGatewayScheme(t *testing.T) {
	body := []byte(`{"data":{"reference":"ORD-1","status":"success"}}`)

	p := NewPaystack("ps_secret", "http://unused", time.Second)
	assert.NoError(t, p.VerifySignature(body, signature.Paystack.Sign(body, "ps_secret")))
	assert.ErrorIs(t, p.VerifySignature(body, signature.Flutterwave.Sign(body, "ps_secret")), signature.ErrSignatureMismatch)

	f := NewFlutterwave("flw_secret", "http://unused")
	assert.NoError(t, f.VerifySignature(body, signature.Flutterwave.Sign(body, "flw_secret")))
	assert.ErrorIs(t, f.VerifySignature(body, ""), signature.ErrMissingSignature)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewPaystack("a", "http://x", time.Second), NewFlutterwave("b", "http://y"))

	p, err := r.Get(models.GatewayFlutterwave)
	require.NoError(t, err)
	assert.Equal(t, "verif-hash", p.SignatureHeader())

	_, err = r.Get(models.Gateway("STRIPE"))
	assert.ErrorIs(t, err, ErrUnknownGateway)
	assert.True(t, strings.Contains(err.Error(), "STRIPE"))
}
