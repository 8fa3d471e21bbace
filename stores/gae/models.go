//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	la "github.com/panyam/linkauth"
)

// AccountEntity is the Datastore entity for accounts. Credential keys are
// indexed for lookups; everything else is noindex.
type AccountEntity struct {
	Key *datastore.Key `datastore:"__key__"`

	LocalEmail        string `datastore:"local_email"`
	LocalPasswordHash string `datastore:"local_password_hash,noindex"`

	FacebookID    string `datastore:"facebook_id"`
	FacebookToken string `datastore:"facebook_token,noindex"`
	FacebookName  string `datastore:"facebook_name,noindex"`
	FacebookEmail string `datastore:"facebook_email,noindex"`

	TwitterID       string `datastore:"twitter_id"`
	TwitterToken    string `datastore:"twitter_token,noindex"`
	TwitterName     string `datastore:"twitter_name,noindex"`
	TwitterUsername string `datastore:"twitter_username,noindex"`

	GoogleID    string `datastore:"google_id"`
	GoogleToken string `datastore:"google_token,noindex"`
	GoogleName  string `datastore:"google_name,noindex"`
	GoogleEmail string `datastore:"google_email,noindex"`

	CreatedAt time.Time `datastore:"created_at"`
	UpdatedAt time.Time `datastore:"updated_at"`
	Version   int       `datastore:"version"`
}

// ClaimEntity reserves one unique credential key for an account.
// Key name format: provider + ":" + value
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *AccountEntity) ToAccount() *la.Account {
	out := &la.Account{
		ID:        e.Key.Name,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.LocalEmail != "" {
		out.Local = &la.LocalCredentials{Email: e.LocalEmail, PasswordHash: e.LocalPasswordHash}
	}
	if e.FacebookID != "" {
		out.Facebook = &la.ProviderProfile{ID: e.FacebookID, Token: e.FacebookToken, DisplayName: e.FacebookName, Email: e.FacebookEmail}
	}
	if e.TwitterID != "" {
		out.Twitter = &la.ProviderProfile{ID: e.TwitterID, Token: e.TwitterToken, DisplayName: e.TwitterName, Username: e.TwitterUsername}
	}
	if e.GoogleID != "" {
		out.Google = &la.ProviderProfile{ID: e.GoogleID, Token: e.GoogleToken, DisplayName: e.GoogleName, Email: e.GoogleEmail}
	}
	return out
}

func AccountToEntity(a *la.Account, key *datastore.Key) *AccountEntity {
	e := &AccountEntity{
		Key:       key,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Local != nil {
		e.LocalEmail, e.LocalPasswordHash = a.Local.Email, a.Local.PasswordHash
	}
	if p := a.Facebook; p != nil {
		e.FacebookID, e.FacebookToken, e.FacebookName, e.FacebookEmail = p.ID, p.Token, p.DisplayName, p.Email
	}
	if p := a.Twitter; p != nil {
		e.TwitterID, e.TwitterToken, e.TwitterName, e.TwitterUsername = p.ID, p.Token, p.DisplayName, p.Username
	}
	if p := a.Google; p != nil {
		e.GoogleID, e.GoogleToken, e.GoogleName, e.GoogleEmail = p.ID, p.Token, p.DisplayName, p.Email
	}
	return e
}

// claimNames lists the claim key names an account holds
func claimNames(a *la.Account) []string {
	var out []string
	if a.Local != nil && a.Local.Email != "" {
		out = append(out, claimName(la.ProviderLocal, a.Local.Email))
	}
	for _, p := range la.OAuthProviders {
		if prof := a.ProviderProfile(p); prof != nil && prof.ID != "" {
			out = append(out, claimName(p, prof.ID))
		}
	}
	return out
}

func claimName(p la.Provider, value string) string {
	return string(p) + ":" + value
}

// providerProperty maps a provider to its indexed id property
func providerProperty(p la.Provider) (string, bool) {
	switch p {
	case la.ProviderFacebook:
		return "facebook_id", true
	case la.ProviderTwitter:
		return "twitter_id", true
	case la.ProviderGoogle:
		return "google_id", true
	}
	return "", false
}
