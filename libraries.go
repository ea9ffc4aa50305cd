package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seasync/seasync/internal/seafile"
)

func newLibrariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "libraries",
		Aliases: []string{"libs"},
		Short:   "List the libraries visible to the account",
		RunE:    runLibraries,
	}
}

// libraryOutput is the JSON schema for `libraries --json`.
type libraryOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Encrypted  bool   `json:"encrypted"`
	Permission string `json:"permission"`
	Size       int64  `json:"size"`
	Mtime      int64  `json:"mtime"`
}

func runLibraries(_ *cobra.Command, _ []string) error {
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

	if flagJSON {
		return printLibrariesJSON(libs)
	}

	printLibrariesTable(libs)

	return nil
}

func printLibrariesJSON(libs []seafile.Library) error {
	out := make([]libraryOutput, 0, len(libs))
	for _, lib := range libs {
		out = append(out, libraryOutput{
			ID:         lib.ID,
			Name:       lib.Name,
			Encrypted:  lib.Encrypted,
			Permission: lib.Permission,
			Size:       lib.Size,
			Mtime:      lib.Mtime,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printLibrariesTable(libs []seafile.Library) {
	rows := make([][]string, 0, len(libs))

	for _, lib := range libs {
		attrs := lib.Permission
		if lib.Encrypted {
			attrs += " encrypted"
		}

		rows = append(rows, []string{
			lib.Name,
			formatSize(lib.Size),
			formatTime(time.Unix(lib.Mtime, 0)),
			attrs,
			lib.ID,
		})
	}

	printTable(os.Stdout, []string{"NAME", "SIZE", "MODIFIED", "ACCESS", "ID"}, rows)
}
