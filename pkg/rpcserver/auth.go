package rpcserver

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims a submitter presents to run a workflow or
// subscribe to notifications. ClientID is attached to the connection's
// log lines for correlation; it carries no authorization semantics
// beyond "the token bearer".
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
}

// KeySet signs and validates submission tokens. It holds every key it
// has ever issued so a token signed before a Rotate call still
// validates, the same rollover behavior as the teacher's identity
// KeySet, simplified to HMAC since the RPC surface has no per-tenant
// asymmetric trust root to manage.
type KeySet struct {
	mu   sync.RWMutex
	kid  string
	keys map[string][]byte
}

// NewKeySet builds a KeySet with one freshly generated key.
func NewKeySet() (*KeySet, error) {
	ks := &KeySet{keys: make(map[string][]byte)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new signing key and makes it current. Tokens
// signed under previous keys keep validating.
func (ks *KeySet) Rotate() error {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("rpcserver: generating key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	kid := fmt.Sprintf("key-%d", len(ks.keys)+1)
	ks.keys[kid] = secret
	ks.kid = kid
	return nil
}

// Sign issues a token for clientID under the current key.
func (ks *KeySet) Sign(clientID string) (string, error) {
	ks.mu.RLock()
	kid, key := ks.kid, ks.keys[ks.kid]
	ks.mu.RUnlock()

	claims := Claims{ClientID: clientID}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *KeySet) keyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		if key, ok := ks.keys[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
}

// Validate parses and validates a bearer token, returning its claims.
func (ks *KeySet) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, ks.keyFunc())
	if err != nil {
		return nil, fmt.Errorf("rpcserver: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("rpcserver: invalid token")
	}
	return claims, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or from the "token" query parameter for browser WebSocket
// clients that can't set custom headers on the upgrade request.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			return strings.TrimPrefix(auth, prefix)
		}
	}
	return r.URL.Query().Get("token")
}
