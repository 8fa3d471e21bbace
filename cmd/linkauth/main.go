// Command linkauth serves the account linking web app: local signup and
// login, Facebook/Twitter/Google sign in, and connect/unlink from a profile
// page, on the store selected by STORE_BACKEND.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	la "github.com/panyam/linkauth"
	lagrpc "github.com/panyam/linkauth/grpc"
	"github.com/panyam/linkauth/internal/config"
	oa2 "github.com/panyam/linkauth/oauth2"
	fsstore "github.com/panyam/linkauth/stores/fs"
	gaestore "github.com/panyam/linkauth/stores/gae"
	gormstore "github.com/panyam/linkauth/stores/gorm"
	mongostore "github.com/panyam/linkauth/stores/mongo"
	pgstore "github.com/panyam/linkauth/stores/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	if cfg.SessionSecret == "" {
		slog.Warn("DEV_MODE: SESSION_SECRET not set, account tokens use the built in development key")
	}
	tokens := (&la.AccountTokens{SecretKey: cfg.SessionSecret, TTL: cfg.Lifetime()}).EnsureDefaults()

	session := scs.New()
	session.Lifetime = cfg.Lifetime()
	session.Cookie.HttpOnly = true
	session.Cookie.SameSite = http.SameSiteLaxMode

	app, err := la.New(store, session)
	if err != nil {
		log.Fatalf("views: %v", err)
	}
	app.Tokens = tokens
	app.Reconciler.Hasher = newHasher(cfg)
	app.Reconciler.StrictLinking = cfg.StrictLinking
	app.EnsureDefaults()
	addProviders(app, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "store", cfg.StoreBackend, "providers", app.Providers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer, err = serveGRPC(cfg.GRPCAddr, tokens, store)
		if err != nil {
			log.Fatalf("grpc: %v", err)
		}
	}

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	slog.Info("stopped")
}

// openStore connects the configured backend and returns a func releasing it
func openStore(ctx context.Context, cfg *config.Config) (la.AccountStore, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case config.BackendFS:
		return fsstore.NewFSAccountStore(cfg.StoragePath), noop, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, err
		}
		closer := func() { _ = client.Disconnect(context.Background()) }
		store := mongostore.NewAccountStore(client, mongostore.Config{DBName: cfg.MongoDatabase})
		if err := store.EnsureIndexes(ctx); err != nil {
			closer()
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return store, closer, nil

	case config.BackendPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL, "up"); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewAccountStore(pool), pool.Close, nil

	case config.BackendGorm:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("automigrate: %w", err)
		}
		closer := noop
		if sqlDB, err := db.DB(); err == nil {
			closer = func() { _ = sqlDB.Close() }
		}
		return gormstore.NewAccountStore(db), closer, nil

	case config.BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProjectID)
		if err != nil {
			return nil, nil, err
		}
		return gaestore.NewAccountStore(client, cfg.DatastoreNamespace), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newHasher(cfg *config.Config) la.PasswordHasher {
	if cfg.PasswordHasher == "argon2" {
		return la.NewArgon2Hasher()
	}
	return &la.BcryptHasher{Cost: cfg.BcryptCost}
}

// addProviders mounts every provider with a configured client id
func addProviders(app *la.LinkAuth, cfg *config.Config) {
	callback := func(creds config.ProviderCredentials, provider la.Provider) string {
		if creds.CallbackURL != "" {
			return creds.CallbackURL
		}
		return fmt.Sprintf("http://localhost:%s/auth/%s/callback/", cfg.Port, provider)
	}

	if creds := cfg.Facebook(); creds.Enabled() {
		p := oa2.NewFacebookOAuth2(creds.ClientID, creds.ClientSecret, callback(creds, la.ProviderFacebook), app.HandleUser)
		app.AddProvider(la.ProviderFacebook, p.Handler())
	}
	if creds := cfg.Twitter(); creds.Enabled() {
		p := oa2.NewTwitterOAuth2(creds.ClientID, creds.ClientSecret, callback(creds, la.ProviderTwitter), app.HandleUser)
		app.AddProvider(la.ProviderTwitter, p.Handler())
	}
	if creds := cfg.Google(); creds.Enabled() {
		p := oa2.NewGoogleOAuth2(creds.ClientID, creds.ClientSecret, callback(creds, la.ProviderGoogle), app.HandleUser)
		app.AddProvider(la.ProviderGoogle, p.Handler())
	}
}

// serveGRPC exposes the health service so callers can check their account
// token; Check itself stays public for load balancers.
func serveGRPC(addr string, tokens *la.AccountTokens, store la.AccountStore) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	authConfig := lagrpc.NewPublicMethodsConfig(tokens, healthpb.Health_Check_FullMethodName)
	authConfig.Store = store
	s := grpc.NewServer(
		grpc.UnaryInterceptor(lagrpc.UnaryAuthInterceptor(authConfig)),
		grpc.StreamInterceptor(lagrpc.StreamAuthInterceptor(authConfig)),
	)
	healthpb.RegisterHealthServer(s, health.NewServer())

	go func() {
		slog.Info("grpc server listening", "addr", addr)
		if err := s.Serve(lis); err != nil {
			slog.Error("grpc serve", "error", err)
		}
	}()
	return s, nil
}
