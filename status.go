package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// recentErrorLimit caps how many stored error records status displays.
const recentErrorLimit = 20

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-library sync state and recent errors",
		RunE:  runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Libraries []statusLibrary `json:"libraries"`
	Errors    []statusError   `json:"errors"`
}

type statusLibrary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LastSyncTime int64  `json:"last_sync_time,omitempty"`
	FileCount    int    `json:"file_count"`
}

type statusError struct {
	Timestamp   int64  `json:"timestamp"`
	LibraryName string `json:"library_name,omitempty"`
	Path        string `json:"path,omitempty"`
	Message     string `json:"message"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	sess, err := newSession(ctx, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	libs, err := sess.client.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("listing libraries: %w", err)
	}

	out := statusOutput{}

	for _, lib := range libs {
		entry := statusLibrary{ID: lib.ID, Name: lib.Name}

		state, err := sess.store.GetState(ctx, lib.ID)
		if err != nil {
			return fmt.Errorf("reading state for %s: %w", lib.Name, err)
		}

		if state != nil {
			entry.LastSyncTime = state.LastSyncTime
			entry.FileCount = len(state.Files)
		}

		out.Libraries = append(out.Libraries, entry)
	}

	recs, err := sess.store.RecentErrors(ctx, recentErrorLimit)
	if err != nil {
		return fmt.Errorf("listing recent errors: %w", err)
	}

	for _, rec := range recs {
		out.Errors = append(out.Errors, statusError{
			Timestamp:   rec.Timestamp.Unix(),
			LibraryName: rec.LibraryName,
			Path:        rec.Path,
			Message:     rec.Message,
		})
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printStatus(out)

	return nil
}

func printStatus(out statusOutput) {
	rows := make([][]string, 0, len(out.Libraries))

	for _, lib := range out.Libraries {
		lastSync := "never"
		if lib.LastSyncTime > 0 {
			lastSync = formatTime(time.Unix(lib.LastSyncTime, 0))
		}

		rows = append(rows, []string{
			lib.Name,
			lastSync,
			fmt.Sprintf("%d", lib.FileCount),
		})
	}

	printTable(os.Stdout, []string{"LIBRARY", "LAST SYNC", "FILES"}, rows)

	if len(out.Errors) == 0 {
		return
	}

	fmt.Println()
	fmt.Printf("Recent errors:\n")

	for _, e := range out.Errors {
		target := e.LibraryName
		if e.Path != "" {
			target += ":" + e.Path
		}

		if target != "" {
			target += " "
		}

		fmt.Printf("  %s %s%s\n", formatTime(time.Unix(e.Timestamp, 0)), target, e.Message)
	}
}
