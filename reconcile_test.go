package linkauth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	la "github.com/panyam/linkauth"
	"github.com/panyam/linkauth/stores/fs"
)

// countingStore counts writes so tests can check how often an operation persists
type countingStore struct {
	la.AccountStore
	inserts atomic.Int32
	saves   atomic.Int32

	failSaves error
}

func (c *countingStore) InsertAccount(ctx context.Context, account *la.Account) error {
	c.inserts.Add(1)
	return c.AccountStore.InsertAccount(ctx, account)
}

func (c *countingStore) SaveAccount(ctx context.Context, account *la.Account) error {
	c.saves.Add(1)
	if c.failSaves != nil {
		return c.failSaves
	}
	return c.AccountStore.SaveAccount(ctx, account)
}

func setupReconciler(t *testing.T) (*la.Reconciler, *countingStore) {
	t.Helper()
	store := &countingStore{AccountStore: fs.NewFSAccountStore(t.TempDir())}
	return la.NewReconciler(store, &la.BcryptHasher{Cost: 4}), store
}

func expectAuthError(t *testing.T, err error, kind la.ErrorKind, code string) {
	t.Helper()
	var authErr *la.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *AuthError (%s), got %v", code, err)
	}
	if authErr.Kind != kind || authErr.Code != code {
		t.Errorf("Expected %s/%s, got %s/%s (%q)", kind, code, authErr.Kind, authErr.Code, authErr.Message)
	}
}

func googleIdentity(id, token string) *la.VerifiedIdentity {
	return &la.VerifiedIdentity{
		Provider:    la.ProviderGoogle,
		ProviderID:  id,
		Token:       token,
		DisplayName: "Grace Hopper",
		Email:       "grace@example.com",
	}
}

// TestLocalScenario walks signup then the three login outcomes for one account
func TestLocalScenario(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	a, err := r.SignupLocal(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if a.ID == "" || a.Local == nil || a.Local.Email != "a@x.com" {
		t.Fatalf("Unexpected account after signup: %+v", a)
	}
	if a.Local.PasswordHash == "pw1" {
		t.Error("Password stored in plain text")
	}

	got, err := r.LoginLocal(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("Expected account %s, got %s", a.ID, got.ID)
	}

	_, err = r.LoginLocal(ctx, "a@x.com", "wrong")
	expectAuthError(t, err, la.KindAuthFailed, la.ErrCodeWrongPassword)
	if err.Error() != "Oops! Wrong password." {
		t.Errorf("Unexpected message %q", err.Error())
	}

	_, err = r.LoginLocal(ctx, "b@x.com", "anything")
	expectAuthError(t, err, la.KindNotFound, la.ErrCodeNoUser)
	if err.Error() != "No user found." {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestSignupDistinctEmails(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for _, email := range []string{"one@x.com", "two@x.com", "three@x.com"} {
		account, err := r.SignupLocal(ctx, email, "password")
		if err != nil {
			t.Fatalf("Signup %s failed: %v", email, err)
		}
		if seen[account.ID] {
			t.Errorf("Account id %s reused for %s", account.ID, email)
		}
		seen[account.ID] = true
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()

	if _, err := r.SignupLocal(ctx, "dup@x.com", "pw1"); err != nil {
		t.Fatalf("First signup failed: %v", err)
	}
	_, err := r.SignupLocal(ctx, "dup@x.com", "pw2")
	expectAuthError(t, err, la.KindConflict, la.ErrCodeEmailTaken)
	if err.Error() != "That email is already taken." {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if n := store.inserts.Load(); n != 1 {
		t.Errorf("Expected 1 insert, got %d", n)
	}

	// the original password still works
	if _, err := r.LoginLocal(ctx, "dup@x.com", "pw1"); err != nil {
		t.Errorf("Original credentials broken: %v", err)
	}
}

// TestConcurrentSignupSameEmail races signups past the engine's lookup; the
// store's uniqueness decides and losers see the same conflict
func TestConcurrentSignupSameEmail(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.SignupLocal(ctx, "race@x.com", "password")
			switch {
			case err == nil:
				ok.Add(1)
			case la.KindOf(err) == la.KindConflict:
				conflicts.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Errorf("Expected 1 success and %d conflicts, got %d and %d", n-1, ok.Load(), conflicts.Load())
	}
}

func TestLoginLocalWithoutLocalCredentials(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	a, err := r.SignupLocal(ctx, "gone@x.com", "password")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := r.Unlink(ctx, a, la.ProviderLocal); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	_, err = r.LoginLocal(ctx, "gone@x.com", "password")
	expectAuthError(t, err, la.KindNotFound, la.ErrCodeNoUser)
}

func TestProviderLoginCreatesThenReuses(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()
	identity := &la.VerifiedIdentity{
		Provider:    la.ProviderFacebook,
		ProviderID:  "fb-123",
		Token:       "fb-token",
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
	}

	first, err := r.AuthenticateProvider(ctx, identity, nil)
	if err != nil {
		t.Fatalf("First login failed: %v", err)
	}
	if first.Local != nil || first.Google != nil || first.Twitter != nil {
		t.Errorf("New account should only hold facebook: %+v", first)
	}
	if *first.Facebook != *identity.Profile() {
		t.Errorf("Expected profile %+v, got %+v", identity.Profile(), first.Facebook)
	}

	// a later login with a fresh token returns the same account untouched
	again := *identity
	again.Token = "newer-token"
	second, err := r.AuthenticateProvider(ctx, &again, nil)
	if err != nil {
		t.Fatalf("Second login failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected same account %s, got %s", first.ID, second.ID)
	}
	if second.Facebook.Token != "fb-token" {
		t.Errorf("Existing token should not change, got %q", second.Facebook.Token)
	}
	if store.saves.Load() != 0 || store.inserts.Load() != 1 {
		t.Errorf("Expected 1 insert and 0 saves, got %d and %d", store.inserts.Load(), store.saves.Load())
	}
}

func TestLinkModeKeepsAccountId(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()

	current, err := r.SignupLocal(ctx, "link@x.com", "password")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	identities := []*la.VerifiedIdentity{
		{Provider: la.ProviderFacebook, ProviderID: "fb-1", Token: "t1", DisplayName: "F", Email: "f@x.com"},
		{Provider: la.ProviderTwitter, ProviderID: "tw-1", Token: "t2", DisplayName: "T", Username: "tee"},
		googleIdentity("g-1", "t3"),
	}
	for _, identity := range identities {
		linked, err := r.AuthenticateProvider(ctx, identity, current)
		if err != nil {
			t.Fatalf("Link %s failed: %v", identity.Provider, err)
		}
		if linked.ID != current.ID {
			t.Errorf("Link %s changed account id to %s", identity.Provider, linked.ID)
		}
		if *linked.ProviderProfile(identity.Provider) != *identity.Profile() {
			t.Errorf("Link %s: expected %+v, got %+v", identity.Provider, identity.Profile(), linked.ProviderProfile(identity.Provider))
		}
	}
	if n := store.saves.Load(); n != int32(len(identities)) {
		t.Errorf("Expected one save per link, got %d", n)
	}

	reloaded, err := r.Resolve(ctx, current.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []la.Provider{la.ProviderLocal, la.ProviderFacebook, la.ProviderTwitter, la.ProviderGoogle}
	got := reloaded.LinkedProviders()
	if len(got) != len(want) {
		t.Fatalf("Expected linked %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected linked %v, got %v", want, got)
		}
	}

	// the provider identity now logs into the same account
	viaGoogle, err := r.AuthenticateProvider(ctx, googleIdentity("g-1", "t4"), nil)
	if err != nil {
		t.Fatalf("Google login failed: %v", err)
	}
	if viaGoogle.ID != current.ID {
		t.Errorf("Expected google login to reach %s, got %s", current.ID, viaGoogle.ID)
	}
}

func TestLinkReplacesPreviousIdentity(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	current, _ := r.SignupLocal(ctx, "swap@x.com", "password")
	if _, err := r.AuthenticateProvider(ctx, googleIdentity("g-old", "t"), current); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if _, err := r.AuthenticateProvider(ctx, googleIdentity("g-new", "t"), current); err != nil {
		t.Fatalf("Relink failed: %v", err)
	}

	// the old id is released and a login with it creates a fresh account
	fresh, err := r.AuthenticateProvider(ctx, googleIdentity("g-old", "t"), nil)
	if err != nil {
		t.Fatalf("Login with old id failed: %v", err)
	}
	if fresh.ID == current.ID {
		t.Error("Old google id should no longer reach the account")
	}
}

func TestLinkProviderHeldByAnotherAccount(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	owner, err := r.AuthenticateProvider(ctx, googleIdentity("g-shared", "t"), nil)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	current, _ := r.SignupLocal(ctx, "second@x.com", "password")

	// the store's uniqueness rejects the save even without strict linking
	_, err = r.AuthenticateProvider(ctx, googleIdentity("g-shared", "t2"), current)
	expectAuthError(t, err, la.KindConflict, la.ErrCodeProviderTaken)

	r.StrictLinking = true
	_, err = r.AuthenticateProvider(ctx, googleIdentity("g-shared", "t2"), current)
	expectAuthError(t, err, la.KindConflict, la.ErrCodeProviderTaken)

	// relinking your own identity is fine under strict linking
	if _, err := r.AuthenticateProvider(ctx, googleIdentity("g-shared", "t3"), owner); err != nil {
		t.Errorf("Relinking own identity failed: %v", err)
	}
}

func TestUnlinkThenLoginBackfills(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()

	account, err := r.AuthenticateProvider(ctx, googleIdentity("g-42", "first"), nil)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := r.Unlink(ctx, account, la.ProviderGoogle); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}

	read, err := r.Resolve(ctx, account.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if read.Linked(la.ProviderGoogle) {
		t.Error("Google should be unlinked")
	}
	if read.Google != nil && (read.Google.Token != "" || read.Google.Email != "" || read.Google.DisplayName != "") {
		t.Errorf("Unlink should clear credentials, got %+v", read.Google)
	}

	inserts := store.inserts.Load()
	back, err := r.AuthenticateProvider(ctx, googleIdentity("g-42", "second"), nil)
	if err != nil {
		t.Fatalf("Login after unlink failed: %v", err)
	}
	if back.ID != account.ID {
		t.Errorf("Expected backfill into %s, got new account %s", account.ID, back.ID)
	}
	if store.inserts.Load() != inserts {
		t.Error("Backfill should not insert")
	}
	if !back.Linked(la.ProviderGoogle) || back.Google.Token != "second" || back.Google.Email != "grace@example.com" {
		t.Errorf("Expected backfilled profile, got %+v", back.Google)
	}
}

func TestUnlinkLastCredentialIsAllowed(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	account, _ := r.SignupLocal(ctx, "only@x.com", "password")
	unlinked, err := r.Unlink(ctx, account, la.ProviderLocal)
	if err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if len(unlinked.LinkedProviders()) != 0 {
		t.Errorf("Expected no linked providers, got %v", unlinked.LinkedProviders())
	}

	// the email is free again
	if _, err := r.SignupLocal(ctx, "only@x.com", "password"); err != nil {
		t.Errorf("Signup with released email failed: %v", err)
	}

	if _, err := r.Unlink(ctx, account, la.Provider("myspace")); !errors.Is(err, la.ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got %v", err)
	}
}

func TestLinkLocal(t *testing.T) {
	r, _ := setupReconciler(t)
	ctx := context.Background()

	social, err := r.AuthenticateProvider(ctx, googleIdentity("g-7", "t"), nil)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := r.SignupLocal(ctx, "taken@x.com", "password"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	_, err = r.LinkLocal(ctx, social, "taken@x.com", "password")
	expectAuthError(t, err, la.KindConflict, la.ErrCodeEmailTaken)

	linked, err := r.LinkLocal(ctx, social, "mine@x.com", "secret-pw")
	if err != nil {
		t.Fatalf("LinkLocal failed: %v", err)
	}
	if linked.ID != social.ID {
		t.Errorf("LinkLocal changed account id")
	}
	viaLocal, err := r.LoginLocal(ctx, "mine@x.com", "secret-pw")
	if err != nil {
		t.Fatalf("Local login failed: %v", err)
	}
	if viaLocal.ID != social.ID {
		t.Errorf("Expected local login to reach %s, got %s", social.ID, viaLocal.ID)
	}

	// relinking the same email to the same account is not a conflict
	if _, err := r.LinkLocal(ctx, viaLocal, "mine@x.com", "another-pw"); err != nil {
		t.Errorf("Relink own email failed: %v", err)
	}
}

// TestLongPasswordIsInvalidInput checks that bcrypt's input limit surfaces
// as a correctable error and nothing is written
func TestLongPasswordIsInvalidInput(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()
	long := strings.Repeat("p", la.MaxBcryptPasswordLength+1)

	_, err := r.SignupLocal(ctx, "long@x.com", long)
	expectAuthError(t, err, la.KindInvalid, la.ErrCodeWeakPassword)
	if store.inserts.Load() != 0 {
		t.Errorf("Expected no insert, got %d", store.inserts.Load())
	}

	account, err := r.SignupLocal(ctx, "short@x.com", "pw")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	_, err = r.LinkLocal(ctx, account, "long@x.com", long)
	expectAuthError(t, err, la.KindInvalid, la.ErrCodeWeakPassword)
	if store.saves.Load() != 0 {
		t.Errorf("Expected no save, got %d", store.saves.Load())
	}

	if _, err := (&la.BcryptHasher{Cost: 4}).HashPassword(long); !errors.Is(err, la.ErrPasswordTooLong) {
		t.Errorf("Expected ErrPasswordTooLong from bcrypt, got %v", err)
	}
}

func TestAuthenticateProviderRejectsLocal(t *testing.T) {
	r, _ := setupReconciler(t)
	_, err := r.AuthenticateProvider(context.Background(), &la.VerifiedIdentity{Provider: la.ProviderLocal, ProviderID: "x"}, nil)
	if !errors.Is(err, la.ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got %v", err)
	}
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	r, store := setupReconciler(t)
	ctx := context.Background()

	account, _ := r.SignupLocal(ctx, "disk@x.com", "password")
	diskErr := errors.New("disk full")
	store.failSaves = diskErr

	_, err := r.AuthenticateProvider(ctx, googleIdentity("g-9", "t"), account)
	if !la.IsStorageError(err) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if !errors.Is(err, diskErr) {
		t.Errorf("StorageError should unwrap to the cause, got %v", err)
	}
	if la.KindOf(err) != "" {
		t.Errorf("Storage failures have no user facing kind, got %s", la.KindOf(err))
	}
	if n := store.saves.Load(); n != 1 {
		t.Errorf("Expected exactly one save attempt, got %d", n)
	}
}

func TestResolveMissingAccount(t *testing.T) {
	r, _ := setupReconciler(t)
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}
