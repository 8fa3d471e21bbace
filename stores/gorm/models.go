//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	la "github.com/panyam/linkauth"
)

// AccountModel is the GORM model for accounts. Each credential set is a group
// of columns; the unique columns are nullable so absent credentials never
// collide.
type AccountModel struct {
	ID string `gorm:"primaryKey;size:64"`

	LocalEmail        *string `gorm:"size:320;uniqueIndex"`
	LocalPasswordHash string  `gorm:"size:255"`

	FacebookID    *string `gorm:"size:128;uniqueIndex"`
	FacebookToken string  `gorm:"type:text"`
	FacebookName  string  `gorm:"size:255"`
	FacebookEmail string  `gorm:"size:320"`

	TwitterID       *string `gorm:"size:128;uniqueIndex"`
	TwitterToken    string  `gorm:"type:text"`
	TwitterName     string  `gorm:"size:255"`
	TwitterUsername string  `gorm:"size:255"`

	GoogleID    *string `gorm:"size:128;uniqueIndex"`
	GoogleToken string  `gorm:"type:text"`
	GoogleName  string  `gorm:"size:255"`
	GoogleEmail string  `gorm:"size:320"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *la.Account {
	out := &la.Account{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.LocalEmail != nil {
		out.Local = &la.LocalCredentials{Email: *m.LocalEmail, PasswordHash: m.LocalPasswordHash}
	}
	if m.FacebookID != nil {
		out.Facebook = &la.ProviderProfile{ID: *m.FacebookID, Token: m.FacebookToken, DisplayName: m.FacebookName, Email: m.FacebookEmail}
	}
	if m.TwitterID != nil {
		out.Twitter = &la.ProviderProfile{ID: *m.TwitterID, Token: m.TwitterToken, DisplayName: m.TwitterName, Username: m.TwitterUsername}
	}
	if m.GoogleID != nil {
		out.Google = &la.ProviderProfile{ID: *m.GoogleID, Token: m.GoogleToken, DisplayName: m.GoogleName, Email: m.GoogleEmail}
	}
	return out
}

func AccountToModel(a *la.Account) *AccountModel {
	m := &AccountModel{
		ID:        a.ID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Local != nil && a.Local.Email != "" {
		email := a.Local.Email
		m.LocalEmail = &email
		m.LocalPasswordHash = a.Local.PasswordHash
	}
	if p := a.Facebook; p != nil && p.ID != "" {
		m.FacebookID = nullable(p.ID)
		m.FacebookToken, m.FacebookName, m.FacebookEmail = p.Token, p.DisplayName, p.Email
	}
	if p := a.Twitter; p != nil && p.ID != "" {
		m.TwitterID = nullable(p.ID)
		m.TwitterToken, m.TwitterName, m.TwitterUsername = p.Token, p.DisplayName, p.Username
	}
	if p := a.Google; p != nil && p.ID != "" {
		m.GoogleID = nullable(p.ID)
		m.GoogleToken, m.GoogleName, m.GoogleEmail = p.Token, p.DisplayName, p.Email
	}
	return m
}

func nullable(s string) *string {
	return &s
}

// providerColumn maps a provider to its unique id column
func providerColumn(p la.Provider) (string, bool) {
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
