package oauth2

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

const TwitterUserInfoURL = "https://api.twitter.com/2/users/me"

// TwitterEndpoint is the OAuth 2.0 endpoint for X/Twitter, which requires PKCE
var TwitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

type TwitterOAuth2 struct {
	*BaseOAuth2
}

func NewTwitterOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *TwitterOAuth2 {
	out := TwitterOAuth2{
		BaseOAuth2: NewBaseOAuth2("twitter", clientId, clientSecret, callbackUrl, handleUser),
	}
	out.UserInfoURL = TwitterUserInfoURL
	out.UsePKCE = true
	out.DecodeUserInfo = decodeTwitterUserInfo
	out.oauthConfig.Endpoint = TwitterEndpoint
	out.oauthConfig.Scopes = []string{"users.read", "tweet.read"}
	return &out
}

// decodeTwitterUserInfo unwraps the v2 {"data": {...}} envelope
func decodeTwitterUserInfo(body []byte) (map[string]any, error) {
	var envelope struct {
		Data   map[string]any   `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if envelope.Data == nil {
		if len(envelope.Errors) > 0 {
			return nil, fmt.Errorf("twitter userinfo error: %v", envelope.Errors[0]["detail"])
		}
		return nil, fmt.Errorf("twitter userinfo has no data")
	}
	return envelope.Data, nil
}
