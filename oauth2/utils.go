package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request)

const (
	stateCookieName    = "oauthstate"
	verifierCookieName = "oauthverifier"

	// read back by the app once the login completes
	callbackURLCookieName = "oauthCallbackURL"

	// the handshake has to finish within this window
	flowCookieTTL = 10 * time.Minute
)

func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("error generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	setFlowCookie(w, stateCookieName, state)
	return state
}

func generateVerifierCookie(w http.ResponseWriter) string {
	verifier := oauth2.GenerateVerifier()
	setFlowCookie(w, verifierCookieName, verifier)
	return verifier
}

func setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(flowCookieTTL),
		MaxAge:   int(flowCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

// OauthRedirector sends the browser to the provider's consent page with a
// fresh state cookie. A callbackURL query parameter is remembered in a short
// lived cookie for the app to return to after login.
func OauthRedirector(oauthConfig *oauth2.Config, opts ...oauth2.AuthCodeOption) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		callbackURL := r.URL.Query().Get("callbackURL")
		if callbackURL != "" {
			setFlowCookie(w, callbackURLCookieName, callbackURL)
		}
		oauthState := generateStateOauthCookie(w)
		u := oauthConfig.AuthCodeURL(oauthState, opts...)
		http.Redirect(w, r, u, http.StatusFound)
	}
}
