package linkauth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// Flash keys for the login and signup forms
const (
	LoginMessageKey   = "loginMessage"
	SignupMessageKey  = "signupMessage"
	ConnectMessageKey = "connectMessage"
	ProfileMessageKey = "profileMessage"
)

// CallbackURLCookieName holds the path to return to after a provider login.
// oauth2.OauthRedirector sets it from the callbackURL query parameter.
const CallbackURLCookieName = "oauthCallbackURL"

// LinkAuth is the web app: local forms, provider callbacks, profile,
// connect and unlink, all bound to a session.
type LinkAuth struct {
	router *mux.Router

	Reconciler *Reconciler
	Sessions   *SessionBinder

	// Optional. When set a signed token cookie is issued on every login.
	Tokens *AccountTokens

	Views  *Views
	Policy CredentialsPolicy

	// Where a successful login or link lands. Defaults to "/profile"
	ProfileURL string

	Logger *slog.Logger

	providers []Provider
}

// New builds the app around a store and session manager with default hashing and views
func New(store AccountStore, session *scs.SessionManager) (*LinkAuth, error) {
	views, err := LoadViews()
	if err != nil {
		return nil, err
	}
	a := &LinkAuth{
		Reconciler: NewReconciler(store, nil),
		Sessions:   NewSessionBinder(session, store),
		Views:      views,
	}
	return a.EnsureDefaults(), nil
}

func (a *LinkAuth) EnsureDefaults() *LinkAuth {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Policy.MinPasswordLength <= 0 {
		a.Policy = DefaultCredentialsPolicy()
	}
	if a.ProfileURL == "" {
		a.ProfileURL = "/profile"
	}
	if a.Reconciler != nil {
		a.Reconciler.EnsureDefaults()
	}
	if a.Sessions != nil {
		a.Sessions.EnsureDefaults()
		if a.Sessions.Tokens == nil {
			a.Sessions.Tokens = a.Tokens
		}
	}
	if a.Tokens != nil {
		a.Tokens.EnsureDefaults()
	}
	return a
}

// Handler returns the app wrapped in session loading and request logging
func (a *LinkAuth) Handler() http.Handler {
	a.setupRoutes()
	return a.Sessions.Session.LoadAndSave(a.logRequests(a.router))
}

// AddProvider mounts a provider's redirect/callback handler under /auth/{provider}/
func (a *LinkAuth) AddProvider(provider Provider, handler http.Handler) *LinkAuth {
	a.setupRoutes()
	prefix := "/auth/" + string(provider)
	a.Logger.Info("adding provider", "provider", provider, "prefix", prefix)
	a.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, a.Sessions.ExtractAccount(handler)))
	a.router.Handle(prefix, http.RedirectHandler(prefix+"/", http.StatusFound))
	a.providers = append(a.providers, provider)
	return a
}

// Providers lists the mounted OAuth providers in the order they were added
func (a *LinkAuth) Providers() []Provider {
	return a.providers
}

func (a *LinkAuth) setupRoutes() {
	if a.router != nil {
		return
	}
	a.EnsureDefaults()
	r := mux.NewRouter()
	r.HandleFunc("/", a.onIndex).Methods(http.MethodGet)
	r.HandleFunc("/login", a.onLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", a.onLogin).Methods(http.MethodPost)
	r.HandleFunc("/signup", a.onSignupForm).Methods(http.MethodGet)
	r.HandleFunc("/signup", a.onSignup).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet)
	r.HandleFunc("/api/login", a.onAPILogin).Methods(http.MethodPost)
	r.Handle("/api/me", a.Sessions.ExtractAccount(http.HandlerFunc(a.onAPIMe))).Methods(http.MethodGet)

	ensure := a.Sessions.EnsureAccount
	r.Handle("/profile", ensure(http.HandlerFunc(a.onProfile))).Methods(http.MethodGet)
	r.Handle("/connect/local", ensure(http.HandlerFunc(a.onConnectLocalForm))).Methods(http.MethodGet)
	r.Handle("/connect/local", ensure(http.HandlerFunc(a.onConnectLocal))).Methods(http.MethodPost)
	r.Handle("/connect/{provider}", ensure(http.HandlerFunc(a.onConnect))).Methods(http.MethodGet)
	r.Handle("/unlink/{provider}", ensure(http.HandlerFunc(a.onUnlink))).Methods(http.MethodGet)
	a.router = r
}

/**
 * Called by a provider handler after a successful handshake with the
 * access token and the provider's profile.
 *
 * The identity is reconciled against whoever is logged in on this session:
 * nobody means login (or signup), someone means link.
 */
func (a *LinkAuth) HandleUser(authtype, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	p, err := ParseProvider(provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	identity, err := IdentityFromUserInfo(p, token, userInfo)
	if err != nil {
		a.Logger.Warn("unusable provider profile", "provider", provider, "err", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	current, err := a.currentAccount(r)
	if err != nil {
		a.serverError(w, err)
		return
	}
	account, err := a.Reconciler.AuthenticateProvider(r.Context(), identity, current)
	if err != nil {
		if current != nil && KindOf(err) == KindConflict {
			a.Sessions.Flash(r.Context(), ProfileMessageKey, err.Error())
			http.Redirect(w, r, a.ProfileURL, http.StatusFound)
			return
		}
		a.fail(w, r, err, LoginMessageKey, "/login")
		return
	}
	a.login(w, r, account)
}

func (a *LinkAuth) onIndex(w http.ResponseWriter, r *http.Request) {
	a.render(w, "index", pageData{Title: "LinkAuth", Providers: a.providers})
}

func (a *LinkAuth) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Clear(r.Context()); err != nil {
		a.Logger.Error("error clearing session", "err", err)
	}
	if a.Tokens != nil {
		a.Tokens.SetCookie(w, "")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *LinkAuth) onProfile(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	message := a.Sessions.PopFlash(r.Context(), ProfileMessageKey)
	a.render(w, "profile", newProfileData(account, a.providers, message))
}

// onConnect sends a logged in user through the provider handshake. The
// callback finds the session account and links instead of logging in.
func (a *LinkAuth) onConnect(w http.ResponseWriter, r *http.Request) {
	p, err := ParseProvider(mux.Vars(r)["provider"])
	if err != nil || !a.hasProvider(p) {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/auth/"+string(p)+"/", http.StatusFound)
}

func (a *LinkAuth) onUnlink(w http.ResponseWriter, r *http.Request) {
	p, err := ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	account := AccountFromContext(r.Context())
	if _, err := a.Reconciler.Unlink(r.Context(), account, p); err != nil {
		a.serverError(w, err)
		return
	}
	http.Redirect(w, r, a.ProfileURL, http.StatusFound)
}

// login binds the account to the session and lands on the remembered
// callback path, or the profile page
func (a *LinkAuth) login(w http.ResponseWriter, r *http.Request, account *Account) {
	if err := a.Sessions.Bind(r.Context(), account); err != nil {
		a.serverError(w, err)
		return
	}
	if a.Tokens != nil {
		token, err := a.Tokens.Issue(account.ID)
		if err != nil {
			a.Logger.Error("error issuing account token", "account", account.ID, "err", err)
		} else {
			a.Tokens.SetCookie(w, token)
		}
	}
	http.Redirect(w, r, a.popCallbackURL(w, r), http.StatusFound)
}

// popCallbackURL clears the callback cookie and returns its value when it is
// a path on this site
func (a *LinkAuth) popCallbackURL(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(CallbackURLCookieName)
	if err != nil {
		return a.ProfileURL
	}
	http.SetCookie(w, &http.Cookie{
		Name:    CallbackURLCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	if !isLocalPath(cookie.Value) {
		if cookie.Value != "" {
			a.Logger.Warn("ignoring off site callback url", "url", cookie.Value)
		}
		return a.ProfileURL
	}
	return cookie.Value
}

// isLocalPath accepts absolute paths without a scheme or host
func isLocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// fail turns a reconciliation error into a flash and redirect, or a 500 for storage errors
func (a *LinkAuth) fail(w http.ResponseWriter, r *http.Request, err error, flashKey, redirectTo string) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		a.serverError(w, err)
		return
	}
	a.Sessions.Flash(r.Context(), flashKey, authErr.Message)
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

func (a *LinkAuth) serverError(w http.ResponseWriter, err error) {
	a.Logger.Error("request failed", "err", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (a *LinkAuth) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.Views.Render(w, name, data); err != nil {
		a.Logger.Error("error rendering view", "view", name, "err", err)
	}
}

func (a *LinkAuth) currentAccount(r *http.Request) (*Account, error) {
	if account := AccountFromContext(r.Context()); account != nil {
		return account, nil
	}
	return a.Sessions.Resolve(r.Context())
}

func (a *LinkAuth) hasProvider(p Provider) bool {
	for _, mounted := range a.providers {
		if mounted == p {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *LinkAuth) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.Logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
