// Package main is syphaxctl, the operator tool for the Syphax identity
// store. It creates, revokes, restores and deletes users, and registers
// native programs. It reads the same environment (and .env) as the server.
//
// Usage:
//
//	syphaxctl user create -name NAME -email EMAIL [-mobile N] [-image URL] [-password P]
//	syphaxctl user list [-all]
//	syphaxctl user revoke|restore|mark-deletable|delete NAME_OR_EMAIL
//	syphaxctl program register -owner EMAIL -name NAME
//	syphaxctl program list OWNER_NAME_OR_EMAIL
//	syphaxctl program revoke KEY
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/syphax/syphax/internal/config"
	"github.com/syphax/syphax/internal/database"
	"github.com/syphax/syphax/internal/plugins/admin"
	"github.com/syphax/syphax/internal/plugins/auth"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", slog.Any("error", err))
	}

	// Operators read the output; only warnings and errors are logged.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	svc := admin.NewService(
		auth.NewUserRepository(db),
		auth.NewProgramRepository(db),
		cfg.Admin.PhoneRegion,
	)

	cli := &cli{svc: svc, out: os.Stdout, errOut: os.Stderr}
	if err := cli.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
