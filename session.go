package linkauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

type accountContextKey struct{}

// SessionBinder maps an authenticated Account to its id in the session and
// resolves it back through the AccountStore on every request.
type SessionBinder struct {
	Session *scs.SessionManager
	Store   AccountStore

	// Optional: accept a signed account token when the session is empty
	Tokens *AccountTokens

	// Session key holding the account id. Defaults to "accountId"
	Key string

	// Where EnsureAccount sends anonymous visitors. Defaults to "/"
	RedirectURL string

	Logger *slog.Logger
}

func NewSessionBinder(session *scs.SessionManager, store AccountStore) *SessionBinder {
	return (&SessionBinder{Session: session, Store: store}).EnsureDefaults()
}

func (b *SessionBinder) EnsureDefaults() *SessionBinder {
	if b.Session == nil {
		b.Session = scs.New()
	}
	if b.Key == "" {
		b.Key = "accountId"
	}
	if b.RedirectURL == "" {
		b.RedirectURL = "/"
	}
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	return b
}

// Bind stores the account id in the session, renewing the session token to
// avoid fixation
func (b *SessionBinder) Bind(ctx context.Context, account *Account) error {
	if err := b.Session.RenewToken(ctx); err != nil {
		return err
	}
	b.Session.Put(ctx, b.Key, account.ID)
	return nil
}

// AccountID returns the id bound to the session, or ""
func (b *SessionBinder) AccountID(ctx context.Context) string {
	return b.Session.GetString(ctx, b.Key)
}

// Resolve loads the bound account. It returns nil without error when nothing
// is bound or the bound account no longer exists.
func (b *SessionBinder) Resolve(ctx context.Context) (*Account, error) {
	id := b.AccountID(ctx)
	if id == "" {
		return nil, nil
	}
	return b.load(ctx, id)
}

func (b *SessionBinder) load(ctx context.Context, id string) (*Account, error) {
	account, err := b.Store.GetAccountById(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		b.Logger.Warn("session bound to missing account", "account", id)
		b.Session.Remove(ctx, b.Key)
		return nil, nil
	} else if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return account, nil
}

// Clear destroys the session
func (b *SessionBinder) Clear(ctx context.Context) error {
	return b.Session.Destroy(ctx)
}

// Flash queues a one-shot message under key
func (b *SessionBinder) Flash(ctx context.Context, key, message string) {
	b.Session.Put(ctx, key, message)
}

// PopFlash returns and removes the message queued under key
func (b *SessionBinder) PopFlash(ctx context.Context, key string) string {
	return b.Session.PopString(ctx, key)
}

// AccountFromContext returns the account loaded by ExtractAccount, or nil
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account)
	return account
}

// WithAccount returns a copy of ctx carrying account
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

/**
 * Loads the current account (from the session, or failing that from a
 * bearer token) and makes it available via AccountFromContext.
 *
 * No redirects happen here. Use EnsureAccount to also require a login.
 * Must run inside Session.LoadAndSave.
 */
func (b *SessionBinder) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := b.currentAccount(r)
		if err != nil {
			b.Logger.Error("error loading session account", "err", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if account != nil {
			r = r.WithContext(WithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount redirects to RedirectURL unless a logged in account is present
func (b *SessionBinder) EnsureAccount(next http.Handler) http.Handler {
	return b.ExtractAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountFromContext(r.Context()) == nil {
			http.Redirect(w, r, b.RedirectURL, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (b *SessionBinder) currentAccount(r *http.Request) (*Account, error) {
	if account := AccountFromContext(r.Context()); account != nil {
		return account, nil
	}
	if id := b.AccountID(r.Context()); id != "" {
		return b.load(r.Context(), id)
	}
	if b.Tokens != nil {
		if id := b.Tokens.FromRequest(r); id != "" {
			account, err := b.Store.GetAccountById(r.Context(), id)
			if errors.Is(err, ErrAccountNotFound) {
				return nil, nil
			} else if err != nil {
				return nil, &StorageError{Op: "get", Err: err}
			}
			return account, nil
		}
	}
	return nil, nil
}
