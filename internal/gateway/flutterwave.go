package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/signature"
)

// Flutterwave is a sandbox adapter: checkouts are minted locally under
// checkoutURL and no network call is made. Checkouts opened by this service
// carry the transaction id as tx_ref.
type Flutterwave struct {
	secret      string
	checkoutURL string
}

func NewFlutterwave(secret, checkoutURL string) *Flutterwave {
	return &Flutterwave{secret: secret, checkoutURL: strings.TrimRight(checkoutURL, "/")}
}

func (f *Flutterwave) Kind() models.Gateway { return models.GatewayFlutterwave }

func (f *Flutterwave) SignatureHeader() string { return "verif-hash" }

func (f *Flutterwave) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, fmt.Errorf("flutterwave initialize: %w", err)
	}
	ref := uuid.NewString()
	return PaymentResult{
		GatewayRef:       ref,
		AuthorizationURL: f.checkoutURL + "/" + ref,
	}, nil
}

func (f *Flutterwave) VerifySignature(rawBody []byte, sig string) error {
	return signature.Check(signature.Flutterwave, rawBody, sig, f.secret)
}

// flutterwaveWebhook accepts both the flat sandbox shape and the v3
// envelope with a data object.
type flutterwaveWebhook struct {
	Status string `json:"status"`
	TxRef  string `json:"txRef"`
	FlwRef string `json:"flwRef"`
	Data   *struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
		FlwRef string `json:"flw_ref"`
	} `json:"data"`
}

func (f *Flutterwave) ParseWebhook(rawBody []byte) (Notice, error) {
	var hook flutterwaveWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	status, txRef, flwRef := hook.Status, hook.TxRef, hook.FlwRef
	if d := hook.Data; d != nil {
		if status == "" {
			status = d.Status
		}
		if txRef == "" {
			txRef = d.TxRef
		}
		if flwRef == "" {
			flwRef = d.FlwRef
		}
	}
	if txRef == "" && flwRef == "" {
		return Notice{}, fmt.Errorf("%w: neither txRef nor flwRef is set", ErrMalformedPayload)
	}

	return Notice{
		Reference:  txRef,
		GatewayRef: flwRef,
		RawStatus:  status,
		Status:     mapStatus(status, "successful", "failed"),
	}, nil
}
