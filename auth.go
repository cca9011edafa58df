package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	peerTokenIssuer     = "wcnode"
	defaultPeerTokenTTL = 24 * time.Hour
)

// PeerClaims are the claims of a peer token.
type PeerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// PeerAuth issues and verifies the bearer tokens of relay and UI peers.
type PeerAuth struct {
	signingKey *ecdsa.PrivateKey
	tokenTTL   time.Duration
}

// NewPeerAuth creates a token authority. A zero ttl defaults to 24h.
func NewPeerAuth(signingKey *ecdsa.PrivateKey, ttl time.Duration) (*PeerAuth, error) {
	if signingKey == nil {
		return nil, errors.New("peer auth signing key is required")
	}
	if ttl <= 0 {
		ttl = defaultPeerTokenTTL
	}
	return &PeerAuth{signingKey: signingKey, tokenTTL: ttl}, nil
}

func isPeerRole(role string) bool {
	return role == PeerRoleRelay || role == PeerRoleUI
}

// GenerateJWT issues a token for role valid for ttl, or the default ttl when zero.
func (pa *PeerAuth) GenerateJWT(role string, ttl time.Duration) (*PeerClaims, string, error) {
	if !isPeerRole(role) {
		return nil, "", fmt.Errorf("unknown peer role %q", role)
	}
	if ttl <= 0 {
		ttl = pa.tokenTTL
	}

	now := time.Now()
	claims := PeerClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    peerTokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tokenString, err := token.SignedString(pa.signingKey)
	if err != nil {
		return nil, "", err
	}
	return &claims, tokenString, nil
}

func (pa *PeerAuth) VerifyJWT(tokenString string) (*PeerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PeerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return &pa.signingKey.PublicKey, nil
	}, jwt.WithIssuer(peerTokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*PeerClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid JWT token claims")
	}
	if !isPeerRole(claims.Role) {
		return nil, fmt.Errorf("unknown peer role %q", claims.Role)
	}
	return claims, nil
}

// tokenFromRequest reads the bearer token from the Authorization header or
// the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Authenticate returns an authenticator for an endpoint serving expectedRole.
// Tokens of any other role are refused.
func (pa *PeerAuth) Authenticate(expectedRole string) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			return "", errors.New("missing peer token")
		}
		claims, err := pa.VerifyJWT(tokenString)
		if err != nil {
			return "", err
		}
		if claims.Role != expectedRole {
			return "", fmt.Errorf("token for role %q cannot connect as %q", claims.Role, expectedRole)
		}
		return claims.Role, nil
	}
}

// peerPaths maps the websocket endpoints to the role they serve.
var peerPaths = map[string]string{
	"/" + PeerRoleRelay: PeerRoleRelay,
	"/" + PeerRoleUI:    PeerRoleUI,
}

// AuthenticatePeer authenticates an upgrade request against the role of its path.
func (pa *PeerAuth) AuthenticatePeer(r *http.Request) (string, error) {
	role, ok := peerPaths[strings.TrimSuffix(r.URL.Path, "/")]
	if !ok {
		return "", fmt.Errorf("no peer endpoint at %s", r.URL.Path)
	}
	return pa.Authenticate(role)(r)
}
