package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/seasync/seasync/internal/config"
	"github.com/seasync/seasync/internal/seafile"
	"github.com/seasync/seasync/internal/secrets"
	"github.com/seasync/seasync/internal/sync"
)

// session bundles the authenticated client and stores every synced
// command needs.
type session struct {
	client  *seafile.Client
	account *secrets.Account
	secrets *secrets.Store
	store   *sync.SQLiteStore
	logger  *slog.Logger
}

// newSession builds the session from the resolved config and the secret
// store. Fails when no account is saved.
func newSession(ctx context.Context, logger *slog.Logger) (*session, error) {
	secretStore := secrets.NewStore(config.DefaultSecretsPath())

	acct, err := secretStore.Account()
	if err != nil {
		return nil, err
	}

	if acct == nil {
		return nil, errors.New("not logged in, run 'seasync login' first")
	}

	serverURL := acct.ServerURL
	if resolvedCfg != nil && resolvedCfg.ServerURL != "" {
		serverURL = resolvedCfg.ServerURL
	}

	client := seafile.NewClient(serverURL, defaultHTTPClient(), acct.Token, logger)

	if err := client.Ping(ctx); err != nil {
		if errors.Is(err, seafile.ErrUnauthorized) {
			return nil, errors.New("saved token is no longer valid, run 'seasync login' again")
		}

		return nil, fmt.Errorf("reaching server %s: %w", serverURL, err)
	}

	store, err := openStore(resolvedCfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		client:  client,
		account: acct,
		secrets: secretStore,
		store:   store,
		logger:  logger,
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing state database", "error", err.Error())
	}
}

// localLibraryRoot is the directory a library is materialized into.
func localLibraryRoot(libraryName string) string {
	return filepath.Join(resolvedCfg.LocalSyncPath, libraryName)
}

// openStore opens the sync-state database, creating its directory first.
func openStore(dbPath string, logger *slog.Logger) (*sync.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return sync.NewSQLiteStore(dbPath, logger)
}

// wipeDatabase clears all persisted sync state.
func wipeDatabase(dbPath string, logger *slog.Logger) error {
	store, err := sync.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	if err := store.DeleteAll(context.Background()); err != nil {
		return fmt.Errorf("clearing sync state: %w", err)
	}

	return nil
}
