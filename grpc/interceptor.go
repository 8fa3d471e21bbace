package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	la "github.com/panyam/linkauth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	// Tokens verifies bearer tokens. Required.
	Tokens *la.AccountTokens

	// Store, when set, loads the account so handlers can use
	// AccountFromContext. Tokens for deleted accounts are then rejected.
	Store la.AccountStore

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods skip the RequireAuth check. Keys are full method names
	// like "/package.Service/Method".
	PublicMethods map[string]bool

	Logger *slog.Logger
}

// DefaultInterceptorConfig requires auth for all methods.
func DefaultInterceptorConfig(tokens *la.AccountTokens) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Tokens:        tokens,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig requires auth for everything but the given methods.
func NewPublicMethodsConfig(tokens *la.AccountTokens, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(tokens)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig lets unauthenticated requests through.
func OptionalAuthConfig(tokens *la.AccountTokens) *InterceptorConfig {
	config := DefaultInterceptorConfig(tokens)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.Tokens == nil {
		c.Tokens = &la.AccountTokens{}
	}
	c.Tokens.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// UnaryAuthInterceptor resolves the caller's account from metadata and
// stores it on the handler's context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	accountId, err := c.extractAccountID(ctx)
	if err != nil {
		return nil, err
	}
	if accountId == "" {
		if c.RequireAuth && !c.PublicMethods[method] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	ctx = WithAccountID(ctx, accountId)
	if c.Store != nil {
		account, err := c.Store.GetAccountById(ctx, accountId)
		if errors.Is(err, la.ErrAccountNotFound) {
			return nil, status.Error(codes.Unauthenticated, "account not found")
		} else if err != nil {
			c.Logger.Error("error loading account", "account", accountId, "method", method, "error", err)
			return nil, status.Error(codes.Internal, "error loading account")
		}
		ctx = la.WithAccount(ctx, account)
	}
	return ctx, nil
}

// extractAccountID reads the bearer token first and the trusted id header
// second. A bearer token that fails verification is an error even on public
// methods.
func (c *InterceptorConfig) extractAccountID(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	if values := md.Get(c.MetadataKeyAuthorization); len(values) > 0 && values[0] != "" {
		token, found := strings.CutPrefix(values[0], "Bearer ")
		if !found {
			return "", status.Error(codes.Unauthenticated, "expected bearer token")
		}
		accountId, err := c.Tokens.Verify(token)
		if err != nil {
			return "", status.Error(codes.Unauthenticated, "invalid token")
		}
		return accountId, nil
	}

	if c.TrustAccountIDHeader {
		if values := md.Get(c.MetadataKeyAccountID); len(values) > 0 {
			return values[0], nil
		}
	}
	return "", nil
}
