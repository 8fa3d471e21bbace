// Package mongo provides a MongoDB implementation of linkauth.AccountStore.
// Documents keep the nested local/facebook/twitter/google layout, and
// uniqueness of local.email and each provider id is enforced by partial
// unique indexes created in EnsureIndexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	la "github.com/panyam/linkauth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDBName             = "linkauth"
	DefaultAccountsCollection = "accounts"
)

// Config holds the names used by the store. Zero values get defaults.
type Config struct {
	DBName             string
	AccountsCollection string
}

// AccountStore implements la.AccountStore on a MongoDB collection.
// It's safe to use it concurrently from multiple goroutines.
type AccountStore struct {
	accounts *mongo.Collection
}

// NewAccountStore creates a new AccountStore.
// This function panics if client is nil.
func NewAccountStore(client *mongo.Client, cfg Config) *AccountStore {
	if client == nil {
		panic("client must be provided")
	}
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	if cfg.AccountsCollection == "" {
		cfg.AccountsCollection = DefaultAccountsCollection
	}
	return &AccountStore{
		accounts: client.Database(cfg.DBName).Collection(cfg.AccountsCollection),
	}
}

// uniqueKeys are the document fields no two accounts may share
var uniqueKeys = []string{"local.email", "facebook.id", "twitter.id", "google.id"}

// EnsureIndexes creates the partial unique indexes. Safe to call on every start.
func (s *AccountStore) EnsureIndexes(ctx context.Context) error {
	models := make([]mongo.IndexModel, 0, len(uniqueKeys))
	for _, key := range uniqueKeys {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: key, Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{key: bson.M{"$type": "string"}}),
		})
	}
	if _, err := s.accounts.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("error creating account indexes: %w", err)
	}
	return nil
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*la.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, la.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *AccountStore) FindAccountByLocalEmail(ctx context.Context, email string) (*la.Account, error) {
	if email == "" {
		return nil, la.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{"local.email": email})
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider la.Provider, providerId string) (*la.Account, error) {
	if provider == la.ProviderLocal {
		return nil, la.ErrUnknownProvider
	}
	if _, err := la.ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	if providerId == "" {
		return nil, la.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{string(provider) + ".id": providerId})
}

func (s *AccountStore) InsertAccount(ctx context.Context, account *la.Account) error {
	doc, err := toDocument(account)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	now := time.Now()
	doc.Created, doc.Updated = now, now

	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		return translateError(err)
	}
	account.ID = doc.ID.Hex()
	account.CreatedAt, account.UpdatedAt = now, now
	return nil
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	doc, err := toDocument(account)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		return la.ErrAccountNotFound
	}
	doc.Updated = time.Now()

	// created is left untouched; absent credential sets are removed
	set := bson.M{"updated": doc.Updated}
	unset := bson.M{}
	put := func(name string, present bool, value any) {
		if present {
			set[name] = value
		} else {
			unset[name] = ""
		}
	}
	put("local", doc.Local != nil, doc.Local)
	put("facebook", doc.Facebook != nil, doc.Facebook)
	put("twitter", doc.Twitter != nil, doc.Twitter)
	put("google", doc.Google != nil, doc.Google)
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := s.accounts.UpdateByID(ctx, doc.ID, update)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return la.ErrAccountNotFound
	}
	account.UpdatedAt = doc.Updated
	return nil
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M) (*la.Account, error) {
	var doc accountDoc
	if err := s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return doc.toAccount(), nil
}

func translateError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return la.ErrDuplicateAccount
	}
	return err
}
