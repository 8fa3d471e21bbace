package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// UserInfoDecoder turns a provider's userinfo response body into a flat profile map
type UserInfoDecoder func(body []byte) (map[string]any, error)

// BaseOAuth2 runs the authorization code flow for one provider: a redirect
// at "/" and the code exchange plus userinfo fetch at "/callback/". Mount
// Handler() under the provider's prefix.
type BaseOAuth2 struct {
	// Provider name passed to HandleUser ("google", "facebook", ...)
	Provider string

	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// UserInfoURL is fetched with the access token after the exchange.
	// Can be overridden for testing.
	UserInfoURL string

	// Where failed handshakes are redirected. Defaults to "/login"
	AuthFailureUrl string

	// UsePKCE adds an S256 code challenge to the flow
	UsePKCE bool

	// Optional client used for the exchange and userinfo calls
	HTTPClient *http.Client

	DecodeUserInfo UserInfoDecoder

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

// NewBaseOAuth2 creates the flow for provider. Empty credentials fall back to
// OAUTH2_<PROVIDER>_CLIENT_ID, OAUTH2_<PROVIDER>_CLIENT_SECRET and
// OAUTH2_<PROVIDER>_CALLBACK_URL.
func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	envPrefix := "OAUTH2_" + strings.ToUpper(provider) + "_"
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv(envPrefix + "CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(envPrefix + "CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv(envPrefix + "CALLBACK_URL"))
	}
	out := &BaseOAuth2{
		Provider:       provider,
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleUser:     handleUser,
		AuthFailureUrl: "/login",
		DecodeUserInfo: decodeFlatUserInfo,
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/", out.handleRedirect)
	out.mux.HandleFunc("/callback/", out.handleCallback)
	out.mux.HandleFunc("/callback", out.handleCallback)
	return out
}

// Handler serves the redirect and callback endpoints
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

// SetHTTPClient sets the client used for token exchange and userinfo
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

// SetOAuthEndpoint overrides the provider's auth and token URLs
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// Config returns a copy of the oauth2 configuration in use
func (b *BaseOAuth2) Config() oauth2.Config {
	return b.oauthConfig
}

// ExchangeContext carries HTTPClient into the oauth2 library when one is set
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b *BaseOAuth2) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "" {
		http.NotFound(w, r)
		return
	}
	var opts []oauth2.AuthCodeOption
	if b.UsePKCE {
		opts = append(opts, oauth2.S256ChallengeOption(generateVerifierCookie(w)))
	}
	OauthRedirector(&b.oauthConfig, opts...)(w, r)
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie(stateCookieName)
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		clearCookie(w, stateCookieName)
		http.Error(w, fmt.Sprintf("invalid oauth %s state: %s", b.Provider, r.FormValue("state")), http.StatusBadRequest)
		return
	}
	clearCookie(w, stateCookieName)

	if errCode := r.FormValue("error"); errCode != "" {
		slog.Info("provider denied authorization", "provider", b.Provider, "error", errCode)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	var opts []oauth2.AuthCodeOption
	if b.UsePKCE {
		verifier, _ := r.Cookie(verifierCookieName)
		if verifier == nil || verifier.Value == "" {
			http.Error(w, "missing code verifier", http.StatusBadRequest)
			return
		}
		clearCookie(w, verifierCookieName)
		opts = append(opts, oauth2.VerifierOption(verifier.Value))
	}

	token, err := b.oauthConfig.Exchange(b.ExchangeContext(r.Context()), r.FormValue("code"), opts...)
	if err != nil {
		slog.Info("invalid code exchange", "provider", b.Provider, "err", err)
	} else {
		var userInfo map[string]any
		userInfo, err = b.fetchUserInfo(r.Context(), token)
		if err == nil {
			b.HandleUser("oauth", b.Provider, token, userInfo, w, r)
			return
		}
	}
	slog.Info("redirecting due to error", "provider", b.Provider, "err", err)
	http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
}

func (b *BaseOAuth2) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from %s: %w", b.Provider, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s userinfo returned %d", b.Provider, response.StatusCode)
	}
	return b.DecodeUserInfo(contents)
}

func decodeFlatUserInfo(body []byte) (map[string]any, error) {
	var userInfo map[string]any
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}
