// Package client is a small Go client for the linkauth JSON API. It
// exchanges local credentials for an account token and sends it as a bearer
// token on every later request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	la "github.com/panyam/linkauth"
)

// ErrNotLoggedIn is returned by calls that need a token before Login succeeded
var ErrNotLoggedIn = errors.New("not logged in")

// Credential is the token a server issued to this client
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// IsExpired returns true if the access token has expired
func (c *Credential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// APIError is an error body returned by the server
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
}

// AuthClient talks to one linkauth server
type AuthClient struct {
	mu         sync.Mutex
	serverURL  string
	httpClient *http.Client
	credential *Credential
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithHTTPClient sets the base HTTP client (for timeouts, TLS config, etc.).
// Its transport is wrapped with bearer token handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client != nil {
			copied := *client
			c.httpClient = &copied
		}
	}
}

// NewAuthClient creates a client for serverURL; only scheme and host are kept
func NewAuthClient(serverURL string, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	c := &AuthClient{serverURL: serverURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient.Transport = &AuthTransport{Base: base, Token: c.Token}
	return c
}

// HTTPClient returns a client that adds the current token to every request
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Token returns the current access token, or "" if there is none or it expired
func (c *AuthClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credential == nil || c.credential.IsExpired() {
		return ""
	}
	return c.credential.AccessToken
}

// Login exchanges email and password for an account token
func (c *AuthClient) Login(ctx context.Context, email, password string) (*Credential, error) {
	body, err := json.Marshal(la.TokenRequest{GrantType: "password", Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var tokenResp la.TokenResponse
	if err := c.do(req, &tokenResp); err != nil {
		return nil, err
	}
	cred := &Credential{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresAt:   time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	c.mu.Lock()
	c.credential = cred
	c.mu.Unlock()
	return cred, nil
}

// Logout forgets the token. Tokens are stateless so nothing is sent.
func (c *AuthClient) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = nil
}

// Me fetches the account the current token belongs to
func (c *AuthClient) Me(ctx context.Context) (*la.MeResponse, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/me", nil)
	if err != nil {
		return nil, err
	}
	var me la.MeResponse
	if err := c.do(req, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *AuthClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var tokenErr la.TokenError
		_ = json.NewDecoder(resp.Body).Decode(&tokenErr)
		return &APIError{StatusCode: resp.StatusCode, Code: tokenErr.Error, Description: tokenErr.ErrorDescription}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}
