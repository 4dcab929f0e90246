package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentgate/internal/app"
	"rentgate/internal/auth"
	"rentgate/internal/config"
	"rentgate/internal/directory"
	"rentgate/internal/observability"
	"rentgate/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	cfgPath := os.Getenv("RG_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		runServe(ctx, cfg)
	case "migrate":
		runMigrate(ctx, cfg)
	case "mint-token":
		runMintToken(cfg)
	default:
		usage()
	}
}

func runServe(ctx context.Context, cfg config.Config) {
	observability.Init()

	appInstance, err := app.New(ctx, cfg, log.Default())
	if err != nil {
		log.Fatalf("app init error: %v", err)
	}
	defer appInstance.Close()

	log.Printf("rentgated serving on %s", cfg.HTTP.Addr)
	if err := appInstance.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func runMigrate(ctx context.Context, cfg config.Config) {
	if cfg.Database.DSN == "" {
		log.Fatalf("missing database dsn")
	}
	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer st.Close()
	if err := st.WaitReady(ctx, 30*time.Second); err != nil {
		log.Fatalf("database not ready: %v", err)
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("migrations applied")
}

// runMintToken signs a token for local testing and break-glass access:
//
//	rentgated mint-token <user-id> <role> [org-id]
func runMintToken(cfg config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(os.Args) < 4 {
		usage()
		return
	}
	userID := os.Args[2]
	role := directory.ParseRole(os.Args[3])
	if role == "" {
		log.Fatalf("unknown role %q", os.Args[3])
	}
	orgID := ""
	if len(os.Args) > 4 {
		orgID = os.Args[4]
	}

	verifier := auth.NewVerifier(cfg)
	token, err := verifier.Issue(userID, role, orgID, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("mint error: %v", err)
	}
	fmt.Println(token)
}

func usage() {
	fmt.Println("usage: rentgated <serve|migrate|mint-token>")
	fmt.Println("  serve                              start the api server")
	fmt.Println("  migrate                            apply database migrations")
	fmt.Println("  mint-token <user-id> <role> [org]  sign a token for testing")
}
