// Package linkauth reconciles local and social logins into a single account.
//
// An Account holds up to four credential sets: an email/password pair and one
// profile each for Facebook, Twitter and Google. Every successful
// authentication, whichever provider it came through, resolves to exactly one
// Account, and a logged in user can attach further providers to the account
// they are already using.
//
// # Reconciliation
//
// The Reconciler decides where a verified credential lands:
//
//   - Local signup creates an account unless the email is already taken.
//   - Local login checks the stored password hash and changes nothing.
//   - Provider login without a session finds the account by provider id,
//     restores the token if the provider was previously unlinked, or creates
//     a new account.
//   - Provider login with a session links the identity onto the session's
//     account, replacing whatever was linked for that provider before.
//   - Unlink clears a provider's credentials. Provider ids are kept so that a
//     later login with the same external identity finds the account again.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/linkauth"
//	    "github.com/panyam/linkauth/stores/fs"
//	    oa2 "github.com/panyam/linkauth/oauth2"
//	)
//
//	store := fs.NewFSAccountStore("/path/to/storage")
//	app, err := linkauth.New(store, scs.New())
//
//	google := oa2.NewGoogleOAuth2(clientId, clientSecret, callbackURL, app.HandleUser)
//	app.AddProvider(linkauth.ProviderGoogle, google.Handler())
//
//	http.ListenAndServe(":8080", app.Handler())
//
// # Store Implementations
//
// The stores packages provide AccountStore over the filesystem, MongoDB,
// Postgres (pgx or GORM) and Cloud Datastore. Every implementation enforces
// uniqueness of the local email and of each provider id and reports
// violations as ErrDuplicateAccount.
//
// # Testing
//
// Handlers can be tested without a running server using httptest. Tests use
// temporary storage directories for isolation.
package linkauth
