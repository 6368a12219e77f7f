package credentials

import (
	"golang.org/x/oauth2"
)

// Fixed storage keys for the two persisted credentials.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Pair is the access/refresh credential pair issued by the backend.
// Either both tokens are present or neither is.
type Pair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// IsZero reports whether no credentials are held.
func (p Pair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// Token converts the pair into an oauth2 bearer token. Expiry is taken from the
// access token's exp claim when it can be read; otherwise it is left zero.
func (p Pair) Token() *oauth2.Token {
	if p.Access == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
		TokenType:    "Bearer",
	}
	if claims, err := ParseAccessClaims(p.Access); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok
}
