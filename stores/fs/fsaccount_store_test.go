package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	la "github.com/panyam/linkauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSAccountStore {
	return NewFSAccountStore(t.TempDir())
}

func TestInsertAssignsIdAndIndexes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	account := &la.Account{
		Local:  &la.LocalCredentials{Email: "a@x.com", PasswordHash: "h"},
		Google: &la.ProviderProfile{ID: "g1", Token: "t"},
	}
	require.NoError(t, store.InsertAccount(ctx, account))
	require.NotEmpty(t, account.ID)
	assert.False(t, account.CreatedAt.IsZero())

	byId, err := store.GetAccountById(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byId.Local.Email)

	byEmail, err := store.FindAccountByLocalEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	byGoogle, err := store.FindAccountByProvider(ctx, la.ProviderGoogle, "g1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byGoogle.ID)
}

func TestLookupsReturnNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetAccountById(ctx, "missing")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
	_, err = store.FindAccountByLocalEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
	_, err = store.FindAccountByProvider(ctx, la.ProviderTwitter, "t1")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
	_, err = store.FindAccountByProvider(ctx, la.ProviderTwitter, "")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &la.Account{
		Local:    &la.LocalCredentials{Email: "a@x.com"},
		Facebook: &la.ProviderProfile{ID: "fb1", Token: "t"},
	}
	require.NoError(t, store.InsertAccount(ctx, first))

	err := store.InsertAccount(ctx, &la.Account{Local: &la.LocalCredentials{Email: "a@x.com"}})
	assert.ErrorIs(t, err, la.ErrDuplicateAccount)

	err = store.InsertAccount(ctx, &la.Account{Facebook: &la.ProviderProfile{ID: "fb1"}})
	assert.ErrorIs(t, err, la.ErrDuplicateAccount)

	// a rejected save leaves the original owner in place
	second := &la.Account{Google: &la.ProviderProfile{ID: "g2", Token: "t"}}
	require.NoError(t, store.InsertAccount(ctx, second))
	second.Facebook = &la.ProviderProfile{ID: "fb1", Token: "t"}
	assert.ErrorIs(t, store.SaveAccount(ctx, second), la.ErrDuplicateAccount)

	owner, err := store.FindAccountByProvider(ctx, la.ProviderFacebook, "fb1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, owner.ID)
}

func TestSaveReleasesReplacedKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	account := &la.Account{
		Local:    &la.LocalCredentials{Email: "old@x.com"},
		Facebook: &la.ProviderProfile{ID: "fb-old", Token: "t"},
	}
	require.NoError(t, store.InsertAccount(ctx, account))

	account.Local = &la.LocalCredentials{Email: "new@x.com"}
	account.Facebook = &la.ProviderProfile{ID: "fb-new", Token: "t2"}
	require.NoError(t, store.SaveAccount(ctx, account))

	_, err := store.FindAccountByLocalEmail(ctx, "old@x.com")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
	_, err = store.FindAccountByProvider(ctx, la.ProviderFacebook, "fb-old")
	assert.ErrorIs(t, err, la.ErrAccountNotFound)

	found, err := store.FindAccountByProvider(ctx, la.ProviderFacebook, "fb-new")
	require.NoError(t, err)
	assert.Equal(t, "t2", found.Facebook.Token)

	// the released email can be taken by someone else now
	require.NoError(t, store.InsertAccount(ctx, &la.Account{Local: &la.LocalCredentials{Email: "old@x.com"}}))
}

func TestUnlinkedProviderStaysIndexed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	account := &la.Account{Twitter: &la.ProviderProfile{ID: "tw1", Token: "t", Username: "u"}}
	require.NoError(t, store.InsertAccount(ctx, account))

	account.Twitter = &la.ProviderProfile{ID: "tw1"}
	require.NoError(t, store.SaveAccount(ctx, account))

	found, err := store.FindAccountByProvider(ctx, la.ProviderTwitter, "tw1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.False(t, found.Linked(la.ProviderTwitter))
}

func TestFailedInsertReleasesClaimedKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// a file where the accounts directory belongs makes the account write fail
	blocker := filepath.Join(store.StoragePath, "accounts")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	account := &la.Account{
		Local:    &la.LocalCredentials{Email: "stuck@x.com", PasswordHash: "h"},
		Facebook: &la.ProviderProfile{ID: "f1", Token: "t"},
	}
	err := store.InsertAccount(ctx, account)
	require.Error(t, err)
	assert.NotErrorIs(t, err, la.ErrDuplicateAccount)

	_, err = os.Stat(store.indexPath(la.ProviderLocal, "stuck@x.com"))
	assert.True(t, os.IsNotExist(err), "email index left behind")
	_, err = os.Stat(store.indexPath(la.ProviderFacebook, "f1"))
	assert.True(t, os.IsNotExist(err), "facebook index left behind")

	require.NoError(t, os.Remove(blocker))
	retry := &la.Account{
		Local:    &la.LocalCredentials{Email: "stuck@x.com", PasswordHash: "h"},
		Facebook: &la.ProviderProfile{ID: "f1", Token: "t"},
	}
	require.NoError(t, store.InsertAccount(ctx, retry))
	found, err := store.FindAccountByLocalEmail(ctx, "stuck@x.com")
	require.NoError(t, err)
	assert.Equal(t, retry.ID, found.ID)
}

func TestSaveUnknownAccount(t *testing.T) {
	store := newTestStore(t)
	err := store.SaveAccount(context.Background(), &la.Account{ID: "ghost"})
	assert.ErrorIs(t, err, la.ErrAccountNotFound)
}

func TestConcurrentSignupsWithSameEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.InsertAccount(ctx, &la.Account{Local: &la.LocalCredentials{Email: "race@x.com"}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, la.ErrDuplicateAccount)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestFilesOnDisk(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	account := &la.Account{Local: &la.LocalCredentials{Email: "a/b@x.com"}}
	require.NoError(t, store.InsertAccount(ctx, account))

	_, err := os.Stat(filepath.Join(store.StoragePath, "accounts", account.ID+".json"))
	assert.NoError(t, err)

	// separators in keys are escaped, never interpreted as directories
	entries, err := os.ReadDir(filepath.Join(store.StoragePath, "index", "local"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}
