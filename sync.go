package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seasync/seasync/internal/notify"
	"github.com/seasync/seasync/internal/sync"
)

var (
	flagWatch  bool
	flagDryRun bool
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize libraries with the local folder",
		Long: "Runs one sync cycle over all libraries. With --watch, keeps running:\n" +
			"cycles fire on the configured interval, on local filesystem changes,\n" +
			"and on server change notifications.",
		RunE: runSync,
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep running and sync continuously")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print planned actions without executing them")

	return cmd
}

func runSync(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if flagDryRun {
		return runDryRun(ctx, sess)
	}

	orch := sync.NewOrchestrator(sess.client, sess.store, sess.secrets,
		resolvedCfg.LocalSyncPath, logger)

	if !flagWatch {
		if err := orch.RunCycle(ctx); err != nil {
			return err
		}

		return reportCycle(orch.Snapshot())
	}

	return runWatch(ctx, sess, orch)
}

// runWatch supervises the long-running daemon loops: the trigger, the
// filesystem watcher, and (when enabled) the server notification
// listener. Any loop's failure stops the others.
func runWatch(ctx context.Context, sess *session, orch *sync.Orchestrator) error {
	interval := time.Duration(resolvedCfg.SyncIntervalSeconds) * time.Second
	debounce := time.Duration(resolvedCfg.FileChangeDebounceSeconds * float64(time.Second))

	trigger := sync.NewTrigger(orch, interval, debounce, sess.logger)
	watcher := sync.NewWatcher(resolvedCfg.LocalSyncPath, trigger, sess.logger)

	// The watch root must exist before the watcher registers it.
	if err := os.MkdirAll(resolvedCfg.LocalSyncPath, 0o755); err != nil {
		return fmt.Errorf("creating sync root: %w", err)
	}

	statusf("Watching %s (interval %s). Press Ctrl-C to stop.\n",
		resolvedCfg.LocalSyncPath, interval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return trigger.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	if resolvedCfg.Notifications {
		listener := notify.NewListener(sess.client.BaseURL(), sess.account.Token, trigger, sess.logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	return g.Wait()
}

// runDryRun prints the plan each library would execute, without touching
// either side.
func runDryRun(ctx context.Context, sess *session) error {
	libs, err := sess.client.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("listing libraries: %w", err)
	}

	scanner := sync.NewScanner(sess.logger)

	for _, lib := range libs {
		if lib.Encrypted {
			password, err := sess.secrets.LibraryPassword(lib.ID)
			if err != nil || password == "" {
				fmt.Printf("%s: skipped (encrypted, no stored password)\n", lib.Name)
				continue
			}

			if err := sess.client.SetLibraryPassword(ctx, lib.ID, password); err != nil {
				fmt.Printf("%s: skipped (unlock failed: %v)\n", lib.Name, err)
				continue
			}
		}

		plan, err := planLibrary(ctx, sess, scanner, lib.ID, lib.Name, lib.ReadOnly())
		if err != nil {
			return err
		}

		if len(plan) == 0 {
			fmt.Printf("%s: up to date\n", lib.Name)
			continue
		}

		fmt.Printf("%s: %d action(s)\n", lib.Name, len(plan))

		for _, a := range plan {
			fmt.Printf("  %-16s %s\n", a.Type, a.Path)
		}
	}

	return nil
}

func planLibrary(ctx context.Context, sess *session, scanner *sync.Scanner,
	libraryID, libraryName string, readOnly bool,
) ([]sync.Action, error) {
	remote, err := sess.client.ListRecursive(ctx, libraryID, "/")
	if err != nil {
		return nil, fmt.Errorf("listing library %s: %w", libraryName, err)
	}

	localRoot := localLibraryRoot(libraryName)

	local, err := scanner.Scan(ctx, localRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", localRoot, err)
	}

	state, err := sess.store.GetState(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("reading baseline for %s: %w", libraryName, err)
	}

	return sync.Reconcile(sync.ReconcileInput{
		Remote:   remote,
		Local:    local,
		Baseline: sync.BaselineByPath(state),
		ReadOnly: readOnly,
	}), nil
}

// reportCycle summarizes a finished one-shot cycle on stdout and maps
// failures to a non-zero exit.
func reportCycle(snap sync.Snapshot) error {
	if len(snap.Errors) == 0 {
		statusf("Sync complete (%d libraries).\n", len(snap.Libraries))
		return nil
	}

	for _, e := range snap.Errors {
		target := e.LibraryName
		if e.Path != "" {
			target += ":" + e.Path
		}

		fmt.Fprintf(os.Stderr, "  %s: %s\n", target, e.Message)
	}

	return fmt.Errorf("sync finished with %d error(s)", len(snap.Errors))
}
