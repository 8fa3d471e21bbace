// Package grpc carries linked-account identity into gRPC services. The web
// app issues a signed account token on login; gRPC callers present it as a
// bearer token and the interceptors resolve it back to an account.
package grpc

import (
	"context"

	la "github.com/panyam/linkauth"
	"google.golang.org/grpc/metadata"
)

const (
	// DefaultMetadataKeyAuthorization carries "Bearer <account token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyAccountID carries a raw account id from a trusted
	// upstream (eg a gateway that already authenticated the caller)
	DefaultMetadataKeyAccountID = "x-account-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	MetadataKeyAuthorization string
	MetadataKeyAccountID     string

	// TrustAccountIDHeader accepts the raw account id header when no bearer
	// token is present. Only enable behind a gateway that strips it from
	// untrusted callers.
	TrustAccountIDHeader bool
}

func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyAccountID:     DefaultMetadataKeyAccountID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() *Config {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
	return c
}

type accountIdKey struct{}

// WithAccountID stores the authenticated account id on the context
func WithAccountID(ctx context.Context, accountId string) context.Context {
	return context.WithValue(ctx, accountIdKey{}, accountId)
}

// AccountIDFromContext returns the account id the interceptor authenticated,
// or "" for anonymous calls.
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountIdKey{}).(string)
	return id
}

// AccountFromContext returns the account loaded by the interceptor. It is
// only set when the interceptor was configured with a store.
func AccountFromContext(ctx context.Context) *la.Account {
	return la.AccountFromContext(ctx)
}

func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches an account token for a downstream call.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// AccountIDToOutgoingContext forwards an already authenticated account id,
// for services that trust the caller.
func AccountIDToOutgoingContext(ctx context.Context, accountId string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAccountID, accountId)
}
