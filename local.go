package linkauth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Form field names for the local forms
const (
	EmailField    = "email"
	PasswordField = "password"
)

func (a *LinkAuth) onLoginForm(w http.ResponseWriter, r *http.Request) {
	a.render(w, "login", pageData{
		Title:   "Login",
		Message: a.Sessions.PopFlash(r.Context(), LoginMessageKey),
	})
}

func (a *LinkAuth) onSignupForm(w http.ResponseWriter, r *http.Request) {
	a.render(w, "signup", pageData{
		Title:   "Signup",
		Message: a.Sessions.PopFlash(r.Context(), SignupMessageKey),
	})
}

func (a *LinkAuth) onConnectLocalForm(w http.ResponseWriter, r *http.Request) {
	a.render(w, "connect_local", pageData{
		Title:   "Connect Local",
		Message: a.Sessions.PopFlash(r.Context(), ConnectMessageKey),
	})
}

// onLogin only checks that both fields are present; the Reconciler decides
// between "No user found." and "Oops! Wrong password."
func (a *LinkAuth) onLogin(w http.ResponseWriter, r *http.Request) {
	email, password, authErr := parseCredentials(r)
	if authErr == nil && (email == "" || password == "") {
		authErr = NewAuthError(KindInvalid, ErrCodeMissingField, "Email and password are required.", "")
	}
	if authErr != nil {
		a.fail(w, r, authErr, LoginMessageKey, "/login")
		return
	}
	account, err := a.Reconciler.LoginLocal(r.Context(), email, password)
	if err != nil {
		a.fail(w, r, err, LoginMessageKey, "/login")
		return
	}
	a.login(w, r, account)
}

func (a *LinkAuth) onSignup(w http.ResponseWriter, r *http.Request) {
	email, password, authErr := parseCredentials(r)
	if authErr == nil {
		authErr = a.Policy.Validate(email, password)
	}
	if authErr != nil {
		a.fail(w, r, authErr, SignupMessageKey, "/signup")
		return
	}
	account, err := a.Reconciler.SignupLocal(r.Context(), email, password)
	if err != nil {
		a.fail(w, r, err, SignupMessageKey, "/signup")
		return
	}
	a.login(w, r, account)
}

// onConnectLocal adds email/password credentials to the logged in account
func (a *LinkAuth) onConnectLocal(w http.ResponseWriter, r *http.Request) {
	email, password, authErr := parseCredentials(r)
	if authErr == nil {
		authErr = a.Policy.Validate(email, password)
	}
	if authErr != nil {
		a.fail(w, r, authErr, ConnectMessageKey, "/connect/local")
		return
	}
	current := AccountFromContext(r.Context())
	account, err := a.Reconciler.LinkLocal(r.Context(), current, email, password)
	if err != nil {
		a.fail(w, r, err, ConnectMessageKey, "/connect/local")
		return
	}
	a.login(w, r, account)
}

// parseCredentials reads email and password from a form or a JSON body.
// Emails are normalized so lookups ignore case and surrounding space.
func parseCredentials(r *http.Request) (email, password string, authErr *AuthError) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", NewAuthError(KindInvalid, ErrCodeMissingField, "Invalid post body.", "")
		}
		email, _ = data[EmailField].(string)
		password, _ = data[PasswordField].(string)
	} else {
		if err := r.ParseForm(); err != nil {
			return "", "", NewAuthError(KindInvalid, ErrCodeMissingField, "Error parsing form.", "")
		}
		email = r.FormValue(EmailField)
		password = r.FormValue(PasswordField)
	}
	return NormalizeEmail(email), password, nil
}
