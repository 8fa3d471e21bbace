package grpc

import (
	"context"
	"testing"

	la "github.com/panyam/linkauth"
	"github.com/panyam/linkauth/stores/fs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func testTokens() *la.AccountTokens {
	return (&la.AccountTokens{SecretKey: "grpc-test-secret"}).EnsureDefaults()
}

func bearerContext(t *testing.T, tokens *la.AccountTokens, accountId string) context.Context {
	t.Helper()
	token, err := tokens.Issue(accountId)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	md := metadata.Pairs(DefaultMetadataKeyAuthorization, "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func expectCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != code {
		t.Errorf("expected %v code, got %v", code, st.Code())
	}
}

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

func TestDefaultInterceptorConfig(t *testing.T) {
	config := DefaultInterceptorConfig(nil)
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true by default")
	}
	if config.PublicMethods == nil {
		t.Error("expected PublicMethods to be initialized")
	}
	if OptionalAuthConfig(nil).RequireAuth {
		t.Error("expected OptionalAuthConfig to not require auth")
	}

	public := NewPublicMethodsConfig(nil, "/pkg.Svc/Method1")
	if !public.PublicMethods["/pkg.Svc/Method1"] || public.PublicMethods["/pkg.Svc/Method2"] {
		t.Errorf("unexpected public methods: %v", public.PublicMethods)
	}
}

func TestUnaryAuthInterceptor_RequireAuth_Anonymous(t *testing.T) {
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(testTokens()))
	_, err := interceptor(context.Background(), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectCode(t, err, codes.Unauthenticated)
}

func TestUnaryAuthInterceptor_ValidToken(t *testing.T) {
	tokens := testTokens()
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(tokens))

	var seen string
	_, err := interceptor(bearerContext(t, tokens, "acc-1"), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		seen = AccountIDFromContext(ctx)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "acc-1" {
		t.Errorf("expected account id %q in handler, got %q", "acc-1", seen)
	}
}

func TestUnaryAuthInterceptor_InvalidToken(t *testing.T) {
	other := (&la.AccountTokens{SecretKey: "someone-elses-secret"}).EnsureDefaults()
	interceptor := UnaryAuthInterceptor(OptionalAuthConfig(testTokens()))

	// a forged token is rejected even when auth is optional
	_, err := interceptor(bearerContext(t, other, "acc-1"), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectCode(t, err, codes.Unauthenticated)

	md := metadata.Pairs(DefaultMetadataKeyAuthorization, "Basic Zm9vOmJhcg==")
	_, err = interceptor(metadata.NewIncomingContext(context.Background(), md), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectCode(t, err, codes.Unauthenticated)
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewPublicMethodsConfig(testTokens(), unaryInfo.FullMethod))
	called := false
	_, err := interceptor(context.Background(), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		called = true
		if IsAuthenticated(ctx) {
			t.Error("expected anonymous context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for public method")
	}
}

func TestUnaryAuthInterceptor_TrustedAccountHeader(t *testing.T) {
	md := metadata.Pairs(DefaultMetadataKeyAccountID, "acc-7")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	// ignored unless trusted
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(testTokens()))
	_, err := interceptor(ctx, nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	expectCode(t, err, codes.Unauthenticated)

	config := DefaultInterceptorConfig(testTokens())
	config.TrustAccountIDHeader = true
	interceptor = UnaryAuthInterceptor(config)
	var seen string
	_, err = interceptor(ctx, nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		seen = AccountIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "acc-7" {
		t.Errorf("expected account id %q, got %q", "acc-7", seen)
	}
}

func TestUnaryAuthInterceptor_LoadsAccount(t *testing.T) {
	store := fs.NewFSAccountStore(t.TempDir())
	account := &la.Account{Google: &la.ProviderProfile{ID: "g-1", Token: "tok"}}
	if err := store.InsertAccount(context.Background(), account); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tokens := testTokens()
	config := DefaultInterceptorConfig(tokens)
	config.Store = store
	interceptor := UnaryAuthInterceptor(config)

	var loaded *la.Account
	_, err := interceptor(bearerContext(t, tokens, account.ID), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		loaded = AccountFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil || loaded.ID != account.ID || !loaded.Linked(la.ProviderGoogle) {
		t.Errorf("expected loaded account %q, got %+v", account.ID, loaded)
	}

	// a valid token for an account that no longer exists
	_, err = interceptor(bearerContext(t, tokens, "missing"), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectCode(t, err, codes.Unauthenticated)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	tokens := testTokens()
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(tokens))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	var seen string
	err := interceptor(nil, &fakeStream{ctx: bearerContext(t, tokens, "acc-3")}, info, func(srv any, ss grpc.ServerStream) error {
		seen = AccountIDFromContext(ss.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "acc-3" {
		t.Errorf("expected account id %q on stream context, got %q", "acc-3", seen)
	}

	err = interceptor(nil, &fakeStream{ctx: context.Background()}, info, func(srv any, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	expectCode(t, err, codes.Unauthenticated)
}
