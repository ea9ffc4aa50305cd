package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seasync/seasync/internal/config"
	"github.com/seasync/seasync/internal/seafile"
	"github.com/seasync/seasync/internal/secrets"
)

var (
	flagServer          string
	flagUsername        string
	flagPassword        string
	flagSyncDir         string
	flagLibraryPassword string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a Seafile server and save the API token",
		Long: "Obtains an API token from the server, stores it in the secret store,\n" +
			"and writes the server settings to the config file.\n\n" +
			"With --library-password, stores the password for one encrypted library\n" +
			"instead (requires a prior login).",
		RunE: runLogin,
	}

	cmd.Flags().StringVar(&flagServer, "server", "", "server URL, e.g. https://seafile.example.com")
	cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "account email")
	cmd.Flags().StringVarP(&flagPassword, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&flagSyncDir, "sync-dir", "", "local sync root (default ~/Seafile)")
	cmd.Flags().StringVar(&flagLibraryPassword, "library-password", "", "store the password for this encrypted library ID")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token, library passwords, and sync state",
		RunE:  runLogout,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	if flagLibraryPassword != "" {
		return storeLibraryPassword(flagLibraryPassword)
	}

	logger := buildLogger()
	ctx := context.Background()

	if flagServer == "" || flagUsername == "" {
		return errors.New("login requires --server and --username")
	}

	password := flagPassword
	if password == "" {
		var err error

		password, err = promptSecret("Password: ")
		if err != nil {
			return err
		}
	}

	client := seafile.NewClient(flagServer, defaultHTTPClient(), "", logger)

	token, err := client.Login(ctx, flagUsername, password)
	if err != nil {
		if errors.Is(err, seafile.ErrInvalidCredentials) {
			return errors.New("login failed: incorrect username or password")
		}

		return fmt.Errorf("login failed: %w", err)
	}

	store := secrets.NewStore(config.DefaultSecretsPath())
	if err := store.SaveAccount(&secrets.Account{
		ServerURL: flagServer,
		Username:  flagUsername,
		Token:     token,
	}); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	if err := writeLoginConfig(); err != nil {
		return err
	}

	logger.Info("login successful", "server", flagServer, "username", flagUsername)
	statusf("Logged in to %s as %s.\n", flagServer, flagUsername)

	return nil
}

// writeLoginConfig merges the login settings into the config file,
// creating it with defaults on first login.
func writeLoginConfig() error {
	cfgPath := config.DefaultConfigPath()
	if flagConfigPath != "" {
		cfgPath = flagConfigPath
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return err
	}

	cfg.ServerURL = flagServer
	cfg.Username = flagUsername

	if flagSyncDir != "" {
		cfg.LocalSyncPath = flagSyncDir
	}

	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// storeLibraryPassword verifies and saves the password for one
// encrypted library.
func storeLibraryPassword(libraryID string) error {
	logger := buildLogger()
	ctx := context.Background()

	store := secrets.NewStore(config.DefaultSecretsPath())

	acct, err := store.Account()
	if err != nil {
		return err
	}

	if acct == nil {
		return errors.New("not logged in, run 'seasync login' first")
	}

	password := flagPassword
	if password == "" {
		password, err = promptSecret("Library password: ")
		if err != nil {
			return err
		}
	}

	client := seafile.NewClient(acct.ServerURL, defaultHTTPClient(), acct.Token, logger)

	if err := client.SetLibraryPassword(ctx, libraryID, password); err != nil {
		if errors.Is(err, seafile.ErrIncorrectPassword) {
			return errors.New("the server rejected this library password")
		}

		return fmt.Errorf("verifying library password: %w", err)
	}

	if err := store.SaveLibraryPassword(libraryID, password); err != nil {
		return fmt.Errorf("saving library password: %w", err)
	}

	statusf("Password stored for library %s.\n", libraryID)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	store := secrets.NewStore(config.DefaultSecretsPath())
	if err := store.DeleteAll(); err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}

	// Forgetting the baseline too means a later login starts from a clean
	// first sync instead of replaying stale deletions.
	dbPath := config.DefaultDatabasePath()
	if _, err := os.Stat(dbPath); err == nil {
		if err := wipeDatabase(dbPath, logger); err != nil {
			return err
		}
	}

	logger.Info("logout complete")
	statusf("Logged out.\n")

	return nil
}

// promptSecret reads one line from stdin. Prompts always go to stderr
// so they are visible even with output redirected.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", errors.New("empty input")
	}

	return value, nil
}
