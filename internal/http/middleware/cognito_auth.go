package middleware

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-booking/internal/users"
)

// CognitoConfig identifies the user pool whose tokens are accepted.
type CognitoConfig struct {
	Region     string
	UserPoolID string
	ClientID   string // app client id; checked against aud (id tokens) or client_id (access tokens)
}

// Enabled reports whether enough is configured to verify tokens.
func (c CognitoConfig) Enabled() bool {
	return c.Region != "" && c.UserPoolID != ""
}

func (c CognitoConfig) issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// CognitoClaims are the claims of a Cognito id or access token.
type CognitoClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	CustomRole    string   `json:"custom:role"`
	CognitoGroups []string `json:"cognito:groups"`
	TokenUse      string   `json:"token_use"`
	ClientID      string   `json:"client_id"`
}

// Role resolves the clinic role from custom:role, then from group membership.
func (c *CognitoClaims) Role() users.Role {
	if r := users.Role(strings.ToLower(c.CustomRole)); r.Valid() {
		return r
	}
	for _, candidate := range []users.Role{users.RoleAdmin, users.RoleProfessional, users.RolePatient} {
		if slices.Contains(c.CognitoGroups, string(candidate)) {
			return candidate
		}
	}
	return ""
}

type jwksCache struct {
	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// CognitoJWT validates RS256 tokens issued by the user pool and stores the Caller.
// The token subject is the user's uid.
func CognitoJWT(cfg CognitoConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled() {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusUnauthorized, "cognito auth not configured")
			})
		}
	}
	issuer := cfg.issuer()
	jwksURL := issuer + "/.well-known/jwks.json"
	cache := &jwksCache{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			claims := &CognitoClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				kid, _ := t.Header["kid"].(string)
				if kid == "" {
					return nil, fmt.Errorf("missing key id")
				}
				return cache.key(jwksURL, kid)
			}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !audienceMatches(cfg.ClientID, claims) {
				writeError(w, http.StatusUnauthorized, "invalid audience")
				return
			}

			caller := Caller{UID: claims.Subject, Role: claims.Role(), Email: claims.Email}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func audienceMatches(clientID string, claims *CognitoClaims) bool {
	if clientID == "" {
		return true
	}
	switch claims.TokenUse {
	case "id":
		aud, _ := claims.GetAudience()
		return slices.Contains([]string(aud), clientID)
	case "access":
		return claims.ClientID == clientID
	}
	return false
}

// key returns the signing key for kid, refreshing the JWKS hourly or on an unknown kid.
func (c *jwksCache) key(jwksURL, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.expires) {
		if key, ok := c.keys[kid]; ok {
			return key, nil
		}
	}
	keys, err := fetchJWKS(jwksURL)
	if err != nil {
		return nil, err
	}
	c.keys = keys
	c.expires = time.Now().Add(time.Hour)

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func fetchJWKS(url string) (map[string]*rsa.PublicKey, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid RSA keys found in JWKS")
	}
	return keys, nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// Authenticate accepts Cognito RS256 tokens when the pool is configured and HS256 session
// tokens signed with secret otherwise.
func Authenticate(cognitoCfg CognitoConfig, secret string) func(http.Handler) http.Handler {
	if !cognitoCfg.Enabled() {
		return BearerJWT(secret)
	}
	cognitoMW := CognitoJWT(cognitoCfg)
	bearerMW := BearerJWT(secret)

	return func(next http.Handler) http.Handler {
		viaCognito := cognitoMW(next)
		viaBearer := bearerMW(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			if isRS256WithKid(tokenString) {
				viaCognito.ServeHTTP(w, r)
				return
			}
			viaBearer.ServeHTTP(w, r)
		})
	}
}

func isRS256WithKid(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if json.Unmarshal(headerBytes, &header) != nil {
		return false
	}
	return header.Alg == "RS256" && header.Kid != ""
}
