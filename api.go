package linkauth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// TokenRequest is the body of POST /api/login
type TokenRequest struct {
	GrantType string `json:"grant_type"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// TokenResponse carries an account token for API and gRPC callers
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenError is an OAuth 2.0 style error body
type TokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// MeResponse describes the caller's account without any secrets
type MeResponse struct {
	ID         string                      `json:"id"`
	LocalEmail string                      `json:"local_email,omitempty"`
	Linked     []Provider                  `json:"linked"`
	Profiles   map[Provider]ProviderPublic `json:"profiles,omitempty"`
}

type ProviderPublic struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
}

// onAPILogin exchanges local credentials for an account token
func (a *LinkAuth) onAPILogin(w http.ResponseWriter, r *http.Request) {
	if a.Tokens == nil {
		a.errorResponse(w, "server_error", "Token issuing not configured", http.StatusNotImplemented)
		return
	}
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.GrantType != "" && req.GrantType != "password" {
		a.errorResponse(w, "unsupported_grant_type", "Grant type not supported", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		a.errorResponse(w, "invalid_request", "Email and password are required.", http.StatusBadRequest)
		return
	}

	account, err := a.Reconciler.LoginLocal(r.Context(), NormalizeEmail(req.Email), req.Password)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			a.errorResponse(w, "invalid_grant", authErr.Message, http.StatusUnauthorized)
		} else {
			a.Logger.Error("api login failed", "err", err)
			a.errorResponse(w, "server_error", "Failed to authenticate", http.StatusInternalServerError)
		}
		return
	}

	token, err := a.Tokens.Issue(account.ID)
	if err != nil {
		a.Logger.Error("error issuing account token", "account", account.ID, "err", err)
		a.errorResponse(w, "server_error", "Failed to create token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	a.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(a.Tokens.TTL.Seconds()),
	})
}

func (a *LinkAuth) onAPIMe(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if account == nil {
		a.errorResponse(w, "invalid_token", "Authentication required", http.StatusUnauthorized)
		return
	}
	resp := MeResponse{ID: account.ID, Linked: account.LinkedProviders()}
	if resp.Linked == nil {
		resp.Linked = []Provider{}
	}
	if account.Local != nil {
		resp.LocalEmail = account.Local.Email
	}
	for _, p := range OAuthProviders {
		if !account.Linked(p) {
			continue
		}
		if resp.Profiles == nil {
			resp.Profiles = map[Provider]ProviderPublic{}
		}
		prof := account.ProviderProfile(p)
		resp.Profiles[p] = ProviderPublic{ID: prof.ID, DisplayName: prof.DisplayName, Email: prof.Email, Username: prof.Username}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *LinkAuth) errorResponse(w http.ResponseWriter, errorCode, description string, statusCode int) {
	a.writeJSON(w, statusCode, TokenError{Error: errorCode, ErrorDescription: description})
}

func (a *LinkAuth) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		a.Logger.Error("error writing response", "err", err)
	}
}
