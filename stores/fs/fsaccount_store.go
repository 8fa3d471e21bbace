package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	la "github.com/panyam/linkauth"
)

// indexEntry points a unique credential key at the account holding it
type indexEntry struct {
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FSAccountStore implements la.AccountStore using JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── accounts/
//	│   └── {id}.json            # the full Account
//	└── index/
//	    ├── local/{email}.json   # {"account_id": ...}
//	    ├── facebook/{id}.json
//	    ├── twitter/{id}.json
//	    └── google/{id}.json
//
// # Concurrency Model
//
// Writes are serialized by a mutex and files are replaced atomically. Index
// files are claimed before the account file is written, so two accounts can
// never hold the same email or provider id, and are released if that write
// fails. Multiple processes sharing one
// StoragePath are not supported.
type FSAccountStore struct {
	StoragePath string

	mu sync.Mutex
}

// NewFSAccountStore creates a new filesystem-backed AccountStore
func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", url.PathEscape(id)+".json")
}

func (s *FSAccountStore) indexPath(provider la.Provider, key string) string {
	return filepath.Join(s.StoragePath, "index", string(provider), url.PathEscape(key)+".json")
}

func (s *FSAccountStore) GetAccountById(ctx context.Context, id string) (*la.Account, error) {
	if id == "" {
		return nil, la.ErrAccountNotFound
	}
	return s.readAccount(id)
}

func (s *FSAccountStore) FindAccountByLocalEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.findByIndex(la.ProviderLocal, email)
}

func (s *FSAccountStore) FindAccountByProvider(ctx context.Context, provider la.Provider, providerId string) (*la.Account, error) {
	if provider == la.ProviderLocal {
		return nil, la.ErrUnknownProvider
	}
	return s.findByIndex(provider, providerId)
}

func (s *FSAccountStore) InsertAccount(ctx context.Context, account *la.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, err := os.Stat(s.accountPath(account.ID)); err == nil {
		return la.ErrDuplicateAccount
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	return s.write(account, nil)
}

func (s *FSAccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.readAccount(account.ID)
	if err != nil {
		return err
	}
	account.UpdatedAt = time.Now()
	return s.write(account, previous)
}

// write claims the account's index keys, writes the account and releases
// keys the previous version held that the new one does not. Keys claimed by
// this call are released again if the account cannot be written.
func (s *FSAccountStore) write(account, previous *la.Account) (err error) {
	keys := indexKeys(account)
	var unclaimed []indexKey
	for _, k := range keys {
		owner, err := s.readIndex(k.provider, k.key)
		if err != nil {
			return err
		}
		if owner != "" && owner != account.ID {
			return la.ErrDuplicateAccount
		}
		if owner == "" {
			unclaimed = append(unclaimed, k)
		}
	}

	var claimed []indexKey
	defer func() {
		if err != nil {
			s.release(claimed)
		}
	}()
	for _, k := range unclaimed {
		if err := s.writeJSON(s.indexPath(k.provider, k.key), &indexEntry{AccountID: account.ID, CreatedAt: time.Now()}); err != nil {
			return err
		}
		claimed = append(claimed, k)
	}
	if err := s.writeJSON(s.accountPath(account.ID), account); err != nil {
		return err
	}
	claimed = nil

	if previous != nil {
		current := map[indexKey]bool{}
		for _, k := range keys {
			current[k] = true
		}
		for _, k := range indexKeys(previous) {
			if !current[k] {
				if err := os.Remove(s.indexPath(k.provider, k.key)); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
		}
	}
	return nil
}

// release removes index files after a failed write
func (s *FSAccountStore) release(keys []indexKey) {
	for _, k := range keys {
		if err := os.Remove(s.indexPath(k.provider, k.key)); err != nil && !os.IsNotExist(err) {
			slog.Error("error releasing index key", "provider", k.provider, "key", k.key, "err", err)
		}
	}
}

func (s *FSAccountStore) findByIndex(provider la.Provider, key string) (*la.Account, error) {
	if key == "" {
		return nil, la.ErrAccountNotFound
	}
	owner, err := s.readIndex(provider, key)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, la.ErrAccountNotFound
	}
	return s.readAccount(owner)
}

func (s *FSAccountStore) readIndex(provider la.Provider, key string) (string, error) {
	data, err := os.ReadFile(s.indexPath(provider, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", fmt.Errorf("corrupt index %s/%s: %w", provider, key, err)
	}
	return entry.AccountID, nil
}

func (s *FSAccountStore) readAccount(id string) (*la.Account, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	var account la.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *FSAccountStore) writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

type indexKey struct {
	provider la.Provider
	key      string
}

// indexKeys lists the unique keys an account holds. Unlinked providers keep
// their id and so stay indexed.
func indexKeys(account *la.Account) []indexKey {
	var out []indexKey
	if account.Local != nil && account.Local.Email != "" {
		out = append(out, indexKey{la.ProviderLocal, account.Local.Email})
	}
	for _, p := range la.OAuthProviders {
		if prof := account.ProviderProfile(p); prof != nil && prof.ID != "" {
			out = append(out, indexKey{p, prof.ID})
		}
	}
	return out
}
