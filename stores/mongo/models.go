package mongo

import (
	"time"

	la "github.com/panyam/linkauth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type localDoc struct {
	Email    string `bson:"email"`
	Password string `bson:"password"`
}

type providerDoc struct {
	ID       string `bson:"id"`
	Token    string `bson:"token,omitempty"`
	Name     string `bson:"name,omitempty"`
	Email    string `bson:"email,omitempty"`
	Username string `bson:"username,omitempty"`
}

// accountDoc is the stored shape of an account
type accountDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Local    *localDoc          `bson:"local,omitempty"`
	Facebook *providerDoc       `bson:"facebook,omitempty"`
	Twitter  *providerDoc       `bson:"twitter,omitempty"`
	Google   *providerDoc       `bson:"google,omitempty"`
	Created  time.Time          `bson:"created"`
	Updated  time.Time          `bson:"updated"`
}

func toDocument(a *la.Account) (*accountDoc, error) {
	doc := &accountDoc{Created: a.CreatedAt, Updated: a.UpdatedAt}
	if a.ID != "" {
		oid, err := primitive.ObjectIDFromHex(a.ID)
		if err != nil {
			return nil, la.ErrAccountNotFound
		}
		doc.ID = oid
	}
	if a.Local != nil && a.Local.Email != "" {
		doc.Local = &localDoc{Email: a.Local.Email, Password: a.Local.PasswordHash}
	}
	doc.Facebook = toProviderDoc(a.Facebook)
	doc.Twitter = toProviderDoc(a.Twitter)
	doc.Google = toProviderDoc(a.Google)
	return doc, nil
}

func toProviderDoc(p *la.ProviderProfile) *providerDoc {
	if p == nil || p.ID == "" {
		return nil
	}
	return &providerDoc{ID: p.ID, Token: p.Token, Name: p.DisplayName, Email: p.Email, Username: p.Username}
}

func (d *accountDoc) toAccount() *la.Account {
	out := &la.Account{
		ID:        d.ID.Hex(),
		CreatedAt: d.Created,
		UpdatedAt: d.Updated,
	}
	if d.Local != nil {
		out.Local = &la.LocalCredentials{Email: d.Local.Email, PasswordHash: d.Local.Password}
	}
	out.Facebook = d.Facebook.toProfile()
	out.Twitter = d.Twitter.toProfile()
	out.Google = d.Google.toProfile()
	return out
}

func (p *providerDoc) toProfile() *la.ProviderProfile {
	if p == nil {
		return nil
	}
	return &la.ProviderProfile{ID: p.ID, Token: p.Token, DisplayName: p.Name, Email: p.Email, Username: p.Username}
}
