package linkauth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccountTokens issues and verifies signed tokens carrying an account id.
// The web app sets one as a cookie after login so API and gRPC callers can
// present the same identity as a bearer token.
type AccountTokens struct {
	SecretKey  string
	Issuer     string
	Audience   string
	TTL        time.Duration
	CookieName string

	// All the domains where the token cookie is set on login and cleared on logout
	CookieDomains []string
}

func (t *AccountTokens) EnsureDefaults() *AccountTokens {
	if t.SecretKey == "" {
		t.SecretKey = strings.TrimSpace(os.Getenv("LINKAUTH_JWT_SECRET_KEY"))
		if t.SecretKey == "" {
			t.SecretKey = "MyTestJWTSecretKey123456"
		}
	}
	if t.Issuer == "" {
		t.Issuer = "LinkAuth-Issuer"
	}
	if t.Audience == "" {
		t.Audience = "linkauth"
	}
	if t.TTL <= 0 {
		t.TTL = 24 * time.Hour
	}
	if t.CookieName == "" {
		t.CookieName = "LinkAuthToken"
	}
	return t
}

// Issue signs a token whose subject is the account id
func (t *AccountTokens) Issue(accountId string) (string, error) {
	t.EnsureDefaults()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountId,
		Issuer:    t.Issuer,
		Audience:  jwt.ClaimStrings{t.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
	})
	signed, err := token.SignedString([]byte(t.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, audience and expiry and returns the account id
func (t *AccountTokens) Verify(tokenString string) (string, error) {
	t.EnsureDefaults()
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(t.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.Issuer),
		jwt.WithAudience(t.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject not found")
	}
	return claims.Subject, nil
}

// FromRequest returns the account id from a bearer header or the token cookie
func (t *AccountTokens) FromRequest(r *http.Request) string {
	t.EnsureDefaults()
	var candidates []string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		candidates = append(candidates, strings.TrimPrefix(auth, "Bearer "))
	}
	for _, cookie := range r.CookiesNamed(t.CookieName) {
		if cookie.Value != "" {
			candidates = append(candidates, cookie.Value)
		}
	}
	for _, candidate := range candidates {
		if accountId, err := t.Verify(candidate); err == nil {
			return accountId
		}
	}
	return ""
}

// SetCookie writes (or with an empty value, clears) the token cookie on every configured domain
func (t *AccountTokens) SetCookie(w http.ResponseWriter, value string) {
	t.EnsureDefaults()
	domains := t.CookieDomains
	if len(domains) == 0 {
		domains = []string{""}
	}
	for _, domain := range domains {
		cookie := &http.Cookie{
			Name:     t.CookieName,
			Value:    value,
			Domain:   domain,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if value == "" {
			cookie.MaxAge = -1
			cookie.Expires = time.Unix(0, 0)
		} else {
			cookie.MaxAge = int(t.TTL.Seconds())
			cookie.Expires = time.Now().Add(t.TTL)
		}
		http.SetCookie(w, cookie)
	}
}
