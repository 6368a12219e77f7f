package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenExpiry  = 5 * time.Minute
	refreshTokenLength = 32
)

// tokenIssuer creates SimpleJWT style tokens: HS256 access tokens carrying
// user_id, jti and token_type, and opaque random refresh tokens.
type tokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func newTokenIssuer(secret string, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{secret: []byte(secret), expiry: accessTokenExpiry, now: now}
}

func (i *tokenIssuer) createAccessToken(userID int) (string, error) {
	claims := jwtlib.MapClaims{
		"token_type": "access",
		"user_id":    strconv.Itoa(userID),
		"jti":        uuid.NewString(),
		"iat":        i.now().Unix(),
		"exp":        i.now().Add(i.expiry).Unix(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (i *tokenIssuer) createRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// verifyAccessToken checks the signature and expiry of a token issued by i.
func (i *tokenIssuer) verifyAccessToken(raw string) bool {
	_, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		return i.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(i.now))
	return err == nil
}
