//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	la "github.com/panyam/linkauth"
)

// Kind constants for Datastore entities
const (
	KindAccount = "Account"
	KindClaim   = "AccountClaim"
)

// AccountStore implements la.AccountStore using Google Cloud Datastore.
//
// Every unique credential key (local email, provider id) is reserved by a
// ClaimEntity written in the same transaction as the account, so two
// accounts can never hold the same key even under concurrent writes.
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*la.Account, error) {
	if id == "" {
		return nil, la.ErrAccountNotFound
	}
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindAccountByLocalEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.findBy(ctx, "local_email", email)
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider la.Provider, providerId string) (*la.Account, error) {
	property, ok := providerProperty(provider)
	if !ok {
		return nil, la.ErrUnknownProvider
	}
	return s.findBy(ctx, property, providerId)
}

func (s *AccountStore) findBy(ctx context.Context, property, value string) (*la.Account, error) {
	if value == "" {
		return nil, la.ErrAccountNotFound
	}
	query := datastore.NewQuery(KindAccount).
		FilterField(property, "=", value).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(ctx, query)
	var entity AccountEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, la.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) InsertAccount(ctx context.Context, account *la.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	key := s.namespacedKey(KindAccount, account.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		if err := tx.Get(key, &existing); err == nil {
			return la.ErrDuplicateAccount
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		return s.writeTx(tx, key, account, nil)
	})
	return err
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	key := s.namespacedKey(KindAccount, account.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var previous AccountEntity
		if err := tx.Get(key, &previous); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return la.ErrAccountNotFound
			}
			return err
		}
		account.CreatedAt = previous.CreatedAt
		account.UpdatedAt = time.Now()
		return s.writeTx(tx, key, account, &previous)
	})
	return err
}

// writeTx claims the account's keys, puts the account and drops claims the
// previous version held that the new one does not
func (s *AccountStore) writeTx(tx *datastore.Transaction, key *datastore.Key, account *la.Account, previous *AccountEntity) error {
	names := claimNames(account)
	claimKeys := make([]*datastore.Key, len(names))
	for i, name := range names {
		claimKeys[i] = s.namespacedKey(KindClaim, name)
	}

	if len(claimKeys) > 0 {
		claims := make([]ClaimEntity, len(claimKeys))
		err := tx.GetMulti(claimKeys, claims)
		var multi datastore.MultiError
		if err != nil && !errors.As(err, &multi) {
			return err
		}
		for i := range claims {
			if multi != nil && multi[i] != nil {
				if errors.Is(multi[i], datastore.ErrNoSuchEntity) {
					continue
				}
				return multi[i]
			}
			if claims[i].AccountID != account.ID {
				return la.ErrDuplicateAccount
			}
		}

		now := time.Now()
		fresh := make([]*ClaimEntity, len(claimKeys))
		for i, k := range claimKeys {
			fresh[i] = &ClaimEntity{Key: k, AccountID: account.ID, CreatedAt: now}
		}
		if _, err := tx.PutMulti(claimKeys, fresh); err != nil {
			return err
		}
	}

	entity := AccountToEntity(account, key)
	if previous != nil {
		entity.Version = previous.Version + 1

		current := map[string]bool{}
		for _, name := range names {
			current[name] = true
		}
		var stale []*datastore.Key
		for _, name := range claimNames(previous.ToAccount()) {
			if !current[name] {
				stale = append(stale, s.namespacedKey(KindClaim, name))
			}
		}
		if len(stale) > 0 {
			if err := tx.DeleteMulti(stale); err != nil {
				return err
			}
		}
	}
	_, err := tx.Put(key, entity)
	return err
}
