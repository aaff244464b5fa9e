package ratelimit

import (
	"strings"

	"github.com/example/pps/internal/utils"
)

// Identity picks the bucket for a caller: the API key when one is presented,
// otherwise the client address. The key itself never reaches the store.
func Identity(apiKey, clientIP string) string {
	if key := strings.TrimSpace(apiKey); key != "" {
		return "apiKey:" + utils.Digest(key)
	}
	return "ip:" + clientIP
}
