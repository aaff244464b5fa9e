package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestIsStableAndOpaque(t *testing.T) {
	a := Digest("sk_live_123")
	assert.Equal(t, a, Digest("sk_live_123"))
	assert.NotEqual(t, a, Digest("sk_live_124"))
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "sk_live")
}

func TestNotificationTokenRoundTrip(t *testing.T) {
	merchantID, txnID := uuid.New(), uuid.New()
	body := []byte(`{"status":"COMPLETED"}`)

	token, err := SignNotification("secret", merchantID, txnID, body, time.Minute)
	require.NoError(t, err)

	claims, err := ParseNotification("secret", token, body)
	require.NoError(t, err)
	assert.Equal(t, merchantID.String(), claims.MerchantID)
	assert.Equal(t, txnID.String(), claims.TransactionID)

	_, err = ParseNotification("secret", token, []byte(`{"status":"FAILED"}`))
	assert.Error(t, err)

	_, err = ParseNotification("other", token, body)
	assert.Error(t, err)
}

func TestPageFromQuery(t *testing.T) {
	app := fiber.New()
	var got Page
	app.Get("/", func(c *fiber.Ctx) error {
		got = PageFromQuery(c)
		return nil
	})

	cases := map[string]Page{
		"/?page=3&limit=5":     {Number: 3, Size: 5},
		"/?page=-1&limit=abc":  {Number: 1, Size: 20},
		"/?limit=0":            {Number: 1, Size: 20},
		"/?page=2&limit=10000": {Number: 2, Size: 100},
	}
	for target, want := range cases {
		_, err := app.Test(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		assert.Equal(t, want, got, target)
	}

	assert.Equal(t, 10, Page{Number: 3, Size: 5}.Offset())
}

func TestPageMeta(t *testing.T) {
	p := Page{Number: 2, Size: 20}
	assert.Equal(t, PageMeta{CurrentPage: 2, ItemsPerPage: 20, TotalItems: 41, TotalPages: 3}, p.Meta(41))
	assert.Equal(t, 0, p.Meta(0).TotalPages)
}
