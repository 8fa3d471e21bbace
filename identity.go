package linkauth

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// VerifiedIdentity is what a provider handshake yields once it succeeds.
// All provider specific profile shapes are normalized into this before they
// reach the Reconciler.
type VerifiedIdentity struct {
	Provider    Provider
	ProviderID  string
	Token       string
	DisplayName string
	Email       string // empty for twitter
	Username    string // twitter only
}

// Profile converts the identity into the sub-record stored on the Account
func (v *VerifiedIdentity) Profile() *ProviderProfile {
	return &ProviderProfile{
		ID:          v.ProviderID,
		Token:       v.Token,
		DisplayName: v.DisplayName,
		Email:       v.Email,
		Username:    v.Username,
	}
}

// IdentityAdapter maps a provider's raw userinfo into a VerifiedIdentity
type IdentityAdapter func(accessToken string, userInfo map[string]any) (*VerifiedIdentity, error)

var identityAdapters = map[Provider]IdentityAdapter{
	ProviderFacebook: facebookIdentity,
	ProviderTwitter:  twitterIdentity,
	ProviderGoogle:   googleIdentity,
}

// IdentityFromUserInfo runs the adapter registered for provider
func IdentityFromUserInfo(provider Provider, token *oauth2.Token, userInfo map[string]any) (*VerifiedIdentity, error) {
	adapter, ok := identityAdapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if userInfo == nil {
		return nil, fmt.Errorf("%s returned no profile", provider)
	}
	accessToken := ""
	if token != nil {
		accessToken = token.AccessToken
	}
	identity, err := adapter(accessToken, userInfo)
	if err != nil {
		return nil, err
	}
	if identity.ProviderID == "" {
		return nil, fmt.Errorf("%s profile has no id", provider)
	}
	return identity, nil
}

func facebookIdentity(accessToken string, userInfo map[string]any) (*VerifiedIdentity, error) {
	name := stringField(userInfo, "name")
	if name == "" {
		name = strings.TrimSpace(stringField(userInfo, "first_name") + " " + stringField(userInfo, "last_name"))
	}
	return &VerifiedIdentity{
		Provider:    ProviderFacebook,
		ProviderID:  stringField(userInfo, "id"),
		Token:       accessToken,
		DisplayName: name,
		Email:       firstEmail(userInfo),
	}, nil
}

func twitterIdentity(accessToken string, userInfo map[string]any) (*VerifiedIdentity, error) {
	id := stringField(userInfo, "id")
	if id == "" {
		id = stringField(userInfo, "id_str")
	}
	username := stringField(userInfo, "username")
	if username == "" {
		username = stringField(userInfo, "screen_name")
	}
	return &VerifiedIdentity{
		Provider:    ProviderTwitter,
		ProviderID:  id,
		Token:       accessToken,
		DisplayName: stringField(userInfo, "name"),
		Username:    username,
	}, nil
}

func googleIdentity(accessToken string, userInfo map[string]any) (*VerifiedIdentity, error) {
	id := stringField(userInfo, "id")
	if id == "" {
		id = stringField(userInfo, "sub")
	}
	return &VerifiedIdentity{
		Provider:    ProviderGoogle,
		ProviderID:  id,
		Token:       accessToken,
		DisplayName: stringField(userInfo, "name"),
		Email:       firstEmail(userInfo),
	}, nil
}

// firstEmail handles both a flat "email" and passport style "emails": [{"value": ...}]
func firstEmail(userInfo map[string]any) string {
	if email := stringField(userInfo, "email"); email != "" {
		return email
	}
	if emails, ok := userInfo["emails"].([]any); ok && len(emails) > 0 {
		switch e := emails[0].(type) {
		case string:
			return e
		case map[string]any:
			return stringField(e, "value")
		}
	}
	return ""
}

// stringField reads a string, tolerating numeric ids decoded from JSON
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}
