package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NotificationClaims are carried by the X-PPS-Signature header of a merchant
// notification.
type NotificationClaims struct {
	MerchantID    string `json:"merchant_id"`
	TransactionID string `json:"transaction_id"`
	BodySHA256    string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// SignNotification creates an HS256 token binding body to the merchant and
// transaction it describes.
func SignNotification(secret string, merchantID, transactionID uuid.UUID, body []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &NotificationClaims{
		MerchantID:    merchantID.String(),
		TransactionID: transactionID.String(),
		BodySHA256:    BodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pps",
			Subject:   merchantID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseNotification validates the token and checks it covers body.
func ParseNotification(secret, tokenString string, body []byte) (*NotificationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &NotificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*NotificationClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.BodySHA256 != BodyHash(body) {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
