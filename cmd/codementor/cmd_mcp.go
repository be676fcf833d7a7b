package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/felixgeelhaar/codementor/internal/config"
	mcpserver "github.com/felixgeelhaar/codementor/internal/mcp"
	"github.com/felixgeelhaar/codementor/internal/progress"
	"github.com/felixgeelhaar/codementor/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for editor agents",
		Long: `mcp serves the difficulty tools over stdio, or over HTTP when
MCP_ADDR is set. Profiles are read from the local SQLite database unless
the storage driver is "file".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}
}

func runMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	envCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load env config: %w", err)
	}
	cfg.Merge(envCfg)

	thresholds, err := cfg.Difficulty.Thresholds()
	if err != nil {
		return err
	}

	dir, err := config.EnsureCodementorDir()
	if err != nil {
		return fmt.Errorf("ensure codementor dir: %w", err)
	}

	// Setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store progress.ProfileStore
	if cfg.Storage.Driver == config.StorageFile {
		if store, err = progress.NewFileStore(filepath.Join(dir, "profiles")); err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
	} else {
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = filepath.Join(dir, "data", "codementor.db")
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		store = sqlite.NewProfileStore(db)
	}

	srv := mcpserver.NewServer(mcpserver.Config{
		Progress: progress.NewService(store, thresholds),
		Version:  Version,
	})

	if envCfg.MCPAddr != "" {
		fmt.Fprintf(os.Stderr, "codementor MCP listening on %s\n", envCfg.MCPAddr)
		return srv.ServeHTTP(ctx, envCfg.MCPAddr)
	}
	return srv.ServeStdio(ctx)
}
