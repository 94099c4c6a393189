package providers

import (
	"context"
	"fmt"
	"strings"
)

var _ AuthProvider = &StaticAuthProvider{}

// StaticAuthProvider accepts tokens of the form "player:<id>". It is meant
// for local development and tests.
type StaticAuthProvider struct{}

func NewStaticAuthProvider() *StaticAuthProvider {
	return &StaticAuthProvider{}
}

const staticTokenPrefix = "player:"

// StaticToken returns the token that identifies player.
func StaticToken(player string) string {
	return staticTokenPrefix + player
}

func (p *StaticAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	if !strings.HasPrefix(idToken, staticTokenPrefix) {
		return nil, fmt.Errorf("error verifying token: malformed static token")
	}
	uid := strings.TrimPrefix(idToken, staticTokenPrefix)
	if uid == "" {
		return nil, fmt.Errorf("error verifying token: empty player id")
	}
	return &TokenClaims{UID: uid}, nil
}
