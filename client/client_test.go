package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	la "github.com/panyam/linkauth"
	"github.com/panyam/linkauth/stores/fs"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := fs.NewFSAccountStore(t.TempDir())
	app, err := la.New(store, scs.New())
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	app.Reconciler.Hasher = &la.BcryptHasher{Cost: 4}
	app.Tokens = &la.AccountTokens{SecretKey: "client-test-secret"}
	app.EnsureDefaults()

	if _, err := app.Reconciler.SignupLocal(context.Background(), "user@example.com", "password123"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestAuthClient_LoginAndMe(t *testing.T) {
	server := setupServer(t)
	client := NewAuthClient(server.URL + "/some/path")
	if client.ServerURL() != server.URL {
		t.Errorf("expected normalized server url %s, got %s", server.URL, client.ServerURL())
	}

	if _, err := client.Me(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}

	cred, err := client.Login(context.Background(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if cred.AccessToken == "" || cred.TokenType != "Bearer" || cred.IsExpired() {
		t.Errorf("unexpected credential %+v", cred)
	}
	if client.Token() != cred.AccessToken {
		t.Error("expected client to hold the token")
	}

	me, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if me.LocalEmail != "user@example.com" || me.ID == "" {
		t.Errorf("unexpected account %+v", me)
	}

	client.Logout()
	if client.Token() != "" {
		t.Error("expected token to be cleared")
	}
}

func TestAuthClient_LoginFailure(t *testing.T) {
	server := setupServer(t)
	client := NewAuthClient(server.URL)

	_, err := client.Login(context.Background(), "user@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != "invalid_grant" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if apiErr.Description != "Oops! Wrong password." {
		t.Errorf("unexpected description %q", apiErr.Description)
	}
	if client.Token() != "" {
		t.Error("failed login should not store a token")
	}
}

func TestAuthTransport(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
	}))
	defer server.Close()

	httpClient := &http.Client{Transport: NewAuthTransport("abc")}
	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if seen != "Bearer abc" {
		t.Errorf("expected bearer header, got %q", seen)
	}

	// an explicit header wins
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer explicit")
	resp, err = httpClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if seen != "Bearer explicit" {
		t.Errorf("expected explicit header, got %q", seen)
	}

	empty := &http.Client{Transport: NewAuthTransport("")}
	resp, err = empty.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if seen != "" {
		t.Errorf("expected no header, got %q", seen)
	}
}
