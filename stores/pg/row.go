package pg

import (
	"time"

	la "github.com/panyam/linkauth"
)

// row mirrors one accounts record. Unique keys are nullable.
type row struct {
	id string

	localEmail        *string
	localPasswordHash string

	facebookID, twitterID, googleID *string

	facebookToken, facebookName, facebookEmail string
	twitterToken, twitterName, twitterUsername string
	googleToken, googleName, googleEmail       string

	createdAt, updatedAt time.Time
}

func toRow(a *la.Account) *row {
	r := &row{id: a.ID, createdAt: a.CreatedAt, updatedAt: a.UpdatedAt}
	if a.Local != nil && a.Local.Email != "" {
		r.localEmail = nullable(a.Local.Email)
		r.localPasswordHash = a.Local.PasswordHash
	}
	if p := a.Facebook; p != nil && p.ID != "" {
		r.facebookID = nullable(p.ID)
		r.facebookToken, r.facebookName, r.facebookEmail = p.Token, p.DisplayName, p.Email
	}
	if p := a.Twitter; p != nil && p.ID != "" {
		r.twitterID = nullable(p.ID)
		r.twitterToken, r.twitterName, r.twitterUsername = p.Token, p.DisplayName, p.Username
	}
	if p := a.Google; p != nil && p.ID != "" {
		r.googleID = nullable(p.ID)
		r.googleToken, r.googleName, r.googleEmail = p.Token, p.DisplayName, p.Email
	}
	return r
}

func (r *row) toAccount() *la.Account {
	out := &la.Account{ID: r.id, CreatedAt: r.createdAt, UpdatedAt: r.updatedAt}
	if r.localEmail != nil {
		out.Local = &la.LocalCredentials{Email: *r.localEmail, PasswordHash: r.localPasswordHash}
	}
	if r.facebookID != nil {
		out.Facebook = &la.ProviderProfile{ID: *r.facebookID, Token: r.facebookToken, DisplayName: r.facebookName, Email: r.facebookEmail}
	}
	if r.twitterID != nil {
		out.Twitter = &la.ProviderProfile{ID: *r.twitterID, Token: r.twitterToken, DisplayName: r.twitterName, Username: r.twitterUsername}
	}
	if r.googleID != nil {
		out.Google = &la.ProviderProfile{ID: *r.googleID, Token: r.googleToken, DisplayName: r.googleName, Email: r.googleEmail}
	}
	return out
}

func nullable(s string) *string {
	return &s
}
