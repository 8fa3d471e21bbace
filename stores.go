package linkauth

import (
	"context"
	"time"
)

// Provider names an identity source an Account can hold credentials for
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderFacebook Provider = "facebook"
	ProviderTwitter  Provider = "twitter"
	ProviderGoogle   Provider = "google"
)

// OAuthProviders lists the external providers in display order
var OAuthProviders = []Provider{ProviderFacebook, ProviderTwitter, ProviderGoogle}

// ParseProvider converts a route/config value into a Provider
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(name); p {
	case ProviderLocal, ProviderFacebook, ProviderTwitter, ProviderGoogle:
		return p, nil
	}
	return "", ErrUnknownProvider
}

func (p Provider) String() string { return string(p) }

// LocalCredentials holds the email/password login for an account
type LocalCredentials struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// ProviderProfile holds what an external provider told us about the account.
// An empty Token means the provider was unlinked; the ID is kept so that a
// later login with the same external identity resolves to this account again.
type ProviderProfile struct {
	ID          string `json:"id"`
	Token       string `json:"token,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`    // facebook, google
	Username    string `json:"username,omitempty"` // twitter
}

// Account is the persisted identity record unifying local and social credentials
type Account struct {
	ID        string            `json:"id"`
	Local     *LocalCredentials `json:"local,omitempty"`
	Facebook  *ProviderProfile  `json:"facebook,omitempty"`
	Twitter   *ProviderProfile  `json:"twitter,omitempty"`
	Google    *ProviderProfile  `json:"google,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProviderProfile returns the sub-record for an OAuth provider (nil if absent)
func (a *Account) ProviderProfile(p Provider) *ProviderProfile {
	switch p {
	case ProviderFacebook:
		return a.Facebook
	case ProviderTwitter:
		return a.Twitter
	case ProviderGoogle:
		return a.Google
	}
	return nil
}

// SetProviderProfile replaces the sub-record for an OAuth provider
func (a *Account) SetProviderProfile(p Provider, profile *ProviderProfile) {
	switch p {
	case ProviderFacebook:
		a.Facebook = profile
	case ProviderTwitter:
		a.Twitter = profile
	case ProviderGoogle:
		a.Google = profile
	}
}

// Linked reports whether the account can currently authenticate via p
func (a *Account) Linked(p Provider) bool {
	if p == ProviderLocal {
		return a.Local != nil && a.Local.Email != ""
	}
	prof := a.ProviderProfile(p)
	return prof != nil && prof.Token != ""
}

// LinkedProviders returns every provider the account can log in with
func (a *Account) LinkedProviders() []Provider {
	var out []Provider
	if a.Linked(ProviderLocal) {
		out = append(out, ProviderLocal)
	}
	for _, p := range OAuthProviders {
		if a.Linked(p) {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate without aliasing store state
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Local != nil {
		local := *a.Local
		out.Local = &local
	}
	for _, p := range OAuthProviders {
		if prof := a.ProviderProfile(p); prof != nil {
			cp := *prof
			out.SetProviderProfile(p, &cp)
		}
	}
	return &out
}

// AccountStore is the storage collaborator of the reconciler.
//
// Lookups return ErrAccountNotFound when nothing matches. Implementations
// must enforce uniqueness of local.email and of every (provider, id) pair on
// their own and report violations as ErrDuplicateAccount.
type AccountStore interface {
	// GetAccountById fetches an account by its store assigned id
	GetAccountById(ctx context.Context, id string) (*Account, error)

	// FindAccountByLocalEmail fetches the account whose local.email matches
	FindAccountByLocalEmail(ctx context.Context, email string) (*Account, error)

	// FindAccountByProvider fetches the account holding (provider, providerId)
	FindAccountByProvider(ctx context.Context, provider Provider, providerId string) (*Account, error)

	// InsertAccount creates a new account and assigns its ID
	InsertAccount(ctx context.Context, account *Account) error

	// SaveAccount updates an existing account
	SaveAccount(ctx context.Context, account *Account) error
}
