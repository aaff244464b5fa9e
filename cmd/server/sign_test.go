package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pps/internal/signature"
)

func runSign(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	signGateway, signSecret = "paystack", ""

	cmd := signWebhookCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignWebhookFromStdin(t *testing.T) {
	body := `{"event":"charge.success","data":{"reference":"ref1","status":"success"}}`

	out, err := runSign(t, body, "--gateway", "paystack", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "x-paystack-signature: "+signature.Paystack.Sign([]byte(body), "s3cret")+"\n", out)

	out, err = runSign(t, body, "-g", "FLUTTERWAVE", "-s", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "verif-hash: "+signature.Flutterwave.Sign([]byte(body), "s3cret")+"\n", out)
}

func TestSignWebhookUnknownGateway(t *testing.T) {
	_, err := runSign(t, "{}", "--gateway", "stripe")
	assert.ErrorContains(t, err, "unknown gateway")
}
