package linkauth

import (
	"context"
	"errors"
	"log/slog"
)

// Reconciler decides, for every verified credential, which Account it
// belongs to: an existing one, a freshly created one, or the caller's
// current account (linking). It keeps no state between calls and is safe
// for concurrent use.
type Reconciler struct {
	Store  AccountStore
	Hasher PasswordHasher

	// StrictLinking rejects linking a provider identity that another account
	// already holds. Off by default: linking overwrites the current account's
	// sub-record without looking at other accounts.
	StrictLinking bool

	Logger *slog.Logger
}

func NewReconciler(store AccountStore, hasher PasswordHasher) *Reconciler {
	return (&Reconciler{Store: store, Hasher: hasher}).EnsureDefaults()
}

func (r *Reconciler) EnsureDefaults() *Reconciler {
	if r.Hasher == nil {
		r.Hasher = &BcryptHasher{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	return r
}

// SignupLocal creates an account with local credentials
func (r *Reconciler) SignupLocal(ctx context.Context, email, password string) (*Account, error) {
	if _, err := r.find(ctx, "find by email", func() (*Account, error) {
		return r.Store.FindAccountByLocalEmail(ctx, email)
	}); err == nil {
		return nil, errEmailTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	hash, err := r.hashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &Account{Local: &LocalCredentials{Email: email, PasswordHash: hash}}
	if err := r.Store.InsertAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			// lost the race against a concurrent signup
			return nil, errEmailTaken
		}
		return nil, &StorageError{Op: "insert", Err: err}
	}
	r.Logger.Info("created local account", "account", account.ID)
	return account, nil
}

// hashPassword reports a password the hasher rejects for length as invalid input
func (r *Reconciler) hashPassword(password string) (string, error) {
	hash, err := r.Hasher.HashPassword(password)
	if errors.Is(err, ErrPasswordTooLong) {
		return "", errLongPassword
	}
	return hash, err
}

// LoginLocal resolves an account from email and password. The account is not modified.
func (r *Reconciler) LoginLocal(ctx context.Context, email, password string) (*Account, error) {
	account, err := r.find(ctx, "find by email", func() (*Account, error) {
		return r.Store.FindAccountByLocalEmail(ctx, email)
	})
	if errors.Is(err, ErrAccountNotFound) {
		return nil, errNoUser
	} else if err != nil {
		return nil, err
	}
	if account.Local == nil {
		return nil, errNoUser
	}
	if !r.Hasher.CheckPassword(password, account.Local.PasswordHash) {
		return nil, errWrongPassword
	}
	return account, nil
}

// AuthenticateProvider reconciles a verified provider identity.
//
// With current == nil it logs in (or signs up) by provider id. With a
// current account it links the identity onto that account, replacing
// whatever was linked for the provider before.
func (r *Reconciler) AuthenticateProvider(ctx context.Context, identity *VerifiedIdentity, current *Account) (*Account, error) {
	if identity == nil || identity.Provider == ProviderLocal || identity.Provider == "" {
		return nil, ErrUnknownProvider
	}
	if current != nil {
		return r.linkProvider(ctx, identity, current)
	}

	account, err := r.find(ctx, "find by provider", func() (*Account, error) {
		return r.Store.FindAccountByProvider(ctx, identity.Provider, identity.ProviderID)
	})
	if err == nil {
		existing := account.ProviderProfile(identity.Provider)
		if existing == nil {
			existing = &ProviderProfile{ID: identity.ProviderID}
			account.SetProviderProfile(identity.Provider, existing)
		}
		if existing.Token != "" {
			return account, nil
		}
		// previously unlinked, bring the credentials back
		existing.Token = identity.Token
		existing.DisplayName = identity.DisplayName
		existing.Email = identity.Email
		existing.Username = identity.Username
		if err := r.save(ctx, account); err != nil {
			return nil, err
		}
		r.Logger.Info("relinked provider", "account", account.ID, "provider", identity.Provider)
		return account, nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	account = &Account{}
	account.SetProviderProfile(identity.Provider, identity.Profile())
	if err := r.Store.InsertAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, errProviderTaken
		}
		return nil, &StorageError{Op: "insert", Err: err}
	}
	r.Logger.Info("created account", "account", account.ID, "provider", identity.Provider)
	return account, nil
}

func (r *Reconciler) linkProvider(ctx context.Context, identity *VerifiedIdentity, current *Account) (*Account, error) {
	if r.StrictLinking {
		other, err := r.find(ctx, "find by provider", func() (*Account, error) {
			return r.Store.FindAccountByProvider(ctx, identity.Provider, identity.ProviderID)
		})
		if err == nil && other.ID != current.ID {
			return nil, errProviderTaken
		} else if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
	}

	current.SetProviderProfile(identity.Provider, identity.Profile())
	if err := r.save(ctx, current); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, errProviderTaken
		}
		return nil, err
	}
	r.Logger.Info("linked provider", "account", current.ID, "provider", identity.Provider)
	return current, nil
}

// LinkLocal attaches email/password credentials to an authenticated account
func (r *Reconciler) LinkLocal(ctx context.Context, current *Account, email, password string) (*Account, error) {
	other, err := r.find(ctx, "find by email", func() (*Account, error) {
		return r.Store.FindAccountByLocalEmail(ctx, email)
	})
	if err == nil && other.ID != current.ID {
		return nil, errEmailTaken
	} else if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	hash, err := r.hashPassword(password)
	if err != nil {
		return nil, err
	}
	current.Local = &LocalCredentials{Email: email, PasswordHash: hash}
	if err := r.save(ctx, current); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, errEmailTaken
		}
		return nil, err
	}
	r.Logger.Info("linked local credentials", "account", current.ID)
	return current, nil
}

// Unlink removes a provider's credentials from the account. Nothing stops
// the last credential from being removed.
func (r *Reconciler) Unlink(ctx context.Context, account *Account, provider Provider) (*Account, error) {
	switch provider {
	case ProviderLocal:
		account.Local = nil
	case ProviderFacebook, ProviderTwitter, ProviderGoogle:
		if prof := account.ProviderProfile(provider); prof != nil {
			// keep the id so a later login finds this account again
			account.SetProviderProfile(provider, &ProviderProfile{ID: prof.ID})
		}
	default:
		return nil, ErrUnknownProvider
	}
	if err := r.save(ctx, account); err != nil {
		return nil, err
	}
	r.Logger.Info("unlinked provider", "account", account.ID, "provider", provider)
	return account, nil
}

// Resolve loads an account by id, as the session binder does on every request
func (r *Reconciler) Resolve(ctx context.Context, id string) (*Account, error) {
	return r.find(ctx, "get", func() (*Account, error) {
		return r.Store.GetAccountById(ctx, id)
	})
}

// find runs a lookup, passing ErrAccountNotFound through and wrapping anything else
func (r *Reconciler) find(ctx context.Context, op string, lookup func() (*Account, error)) (*Account, error) {
	account, err := lookup()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		r.Logger.ErrorContext(ctx, "account lookup failed", "op", op, "err", err)
		return nil, &StorageError{Op: op, Err: err}
	}
	return account, nil
}

func (r *Reconciler) save(ctx context.Context, account *Account) error {
	if err := r.Store.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return err
		}
		r.Logger.ErrorContext(ctx, "account save failed", "account", account.ID, "err", err)
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}
