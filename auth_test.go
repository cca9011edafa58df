package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeerAuth(t *testing.T) *PeerAuth {
	t.Helper()
	signingKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := NewPeerAuth(signingKey, 0)
	require.NoError(t, err)
	return auth
}

func TestNewPeerAuth(t *testing.T) {
	_, err := NewPeerAuth(nil, time.Hour)
	require.Error(t, err)

	auth := newTestPeerAuth(t)
	assert.Equal(t, defaultPeerTokenTTL, auth.tokenTTL)
}

func TestPeerAuth_GenerateAndVerify(t *testing.T) {
	auth := newTestPeerAuth(t)

	claims, token, err := auth.GenerateJWT(PeerRoleUI, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, PeerRoleUI, claims.Role)
	assert.Equal(t, peerTokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	verified, err := auth.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, verified.ID)
	assert.Equal(t, PeerRoleUI, verified.Role)

	_, _, err = auth.GenerateJWT("admin", 0)
	assert.Error(t, err)
}

func TestPeerAuth_VerifyRejects(t *testing.T) {
	auth := newTestPeerAuth(t)
	other := newTestPeerAuth(t)

	sign := func(claims PeerClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(auth.signingKey)
		require.NoError(t, err)
		return token
	}
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    peerTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	_, foreign, err := other.GenerateJWT(PeerRoleRelay, 0)
	require.NoError(t, err)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	wrongIssuer := valid
	wrongIssuer.Issuer = "relay-bridge"

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, PeerClaims{Role: PeerRoleRelay, RegisteredClaims: valid}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"signed by another key": foreign,
		"expired":               sign(PeerClaims{Role: PeerRoleRelay, RegisteredClaims: expired}),
		"without expiry":        sign(PeerClaims{Role: PeerRoleRelay, RegisteredClaims: noExpiry}),
		"wrong issuer":          sign(PeerClaims{Role: PeerRoleRelay, RegisteredClaims: wrongIssuer}),
		"unknown role":          sign(PeerClaims{Role: "admin", RegisteredClaims: valid}),
		"hmac signed":           hmacToken,
		"garbage":               "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.VerifyJWT(token)
			assert.Error(t, err)
		})
	}
}

func TestPeerAuth_AuthenticatePeer(t *testing.T) {
	auth := newTestPeerAuth(t)
	_, relayToken, err := auth.GenerateJWT(PeerRoleRelay, 0)
	require.NoError(t, err)
	_, uiToken, err := auth.GenerateJWT(PeerRoleUI, 0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		target   string
		header   string
		wantRole string
		wantErr  bool
	}{
		{name: "relay bearer", target: "/relay", header: "Bearer " + relayToken, wantRole: PeerRoleRelay},
		{name: "ui query token", target: "/ui/?token=" + uiToken, wantRole: PeerRoleUI},
		{name: "role mismatch", target: "/relay", header: "Bearer " + uiToken, wantErr: true},
		{name: "unknown path", target: "/admin", header: "Bearer " + relayToken, wantErr: true},
		{name: "missing token", target: "/ui", wantErr: true},
		{name: "not a bearer header", target: "/relay", header: "Basic " + relayToken, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			role, err := auth.AuthenticatePeer(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}
