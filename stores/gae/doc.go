//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// linkauth.AccountStore. It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
//   - Account: one entity per account, keyed by account id
//   - AccountClaim: one entity per unique credential key ("local:<email>",
//     "google:<id>", ...) pointing at the owning account
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accountStore := gae.NewAccountStore(client, "")  // default namespace
package gae
