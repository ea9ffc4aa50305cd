package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seasync/seasync/internal/seafile"
)

// ErrSyncInProgress is returned when a cycle is requested while another
// is still running. Triggers drop it silently; the running cycle already
// covers the change.
var ErrSyncInProgress = errors.New("sync: cycle already in progress")

// ServerClient is the full API surface the orchestrator needs: the
// executor's transfer operations plus library enumeration and listing.
type ServerClient interface {
	RemoteClient
	ListLibraries(ctx context.Context) ([]seafile.Library, error)
	ListRecursive(ctx context.Context, libraryID, dirPath string) ([]seafile.Entry, error)
	SetLibraryPassword(ctx context.Context, libraryID, password string) error
}

// SecretSource provides per-library passwords for encrypted libraries.
// Absence is reported as an empty string, never an error.
type SecretSource interface {
	LibraryPassword(libraryID string) (string, error)
}

// Orchestrator drives sync cycles: for each library it lists the remote
// tree, scans the local tree, loads the baseline, reconciles, executes,
// and persists the new baseline. At most one cycle runs at a time;
// overlapping requests are dropped.
type Orchestrator struct {
	client   ServerClient
	store    Store
	scanner  *Scanner
	executor *Executor
	secrets  SecretSource
	syncRoot string
	logger   *slog.Logger

	// cycleMu is the single-flight guard. TryLock at cycle entry makes
	// overlapping triggers collapse without queueing.
	cycleMu sync.Mutex

	// stateMu protects the observable snapshot below.
	stateMu  sync.Mutex
	snapshot Snapshot
	onChange func(Snapshot)

	// nowFunc is injectable for deterministic tests.
	nowFunc func() time.Time
}

// NewOrchestrator wires the cycle dependencies together. syncRoot is the
// directory under which per-library folders are materialized.
func NewOrchestrator(
	client ServerClient,
	store Store,
	secrets SecretSource,
	syncRoot string,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		client:   client,
		store:    store,
		scanner:  NewScanner(logger),
		executor: NewExecutor(client, logger),
		secrets:  secrets,
		syncRoot: syncRoot,
		logger:   logger,
		snapshot: Snapshot{Status: StatusIdle},
		nowFunc:  time.Now,
	}
}

// SetOnChange registers a callback invoked with a snapshot copy after
// every observable state change. Must be called before the first cycle.
func (o *Orchestrator) SetOnChange(fn func(Snapshot)) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	o.onChange = fn
}

// Snapshot returns a copy of the current observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := o.snapshot
	snap.Libraries = append([]seafile.Library(nil), o.snapshot.Libraries...)
	snap.Errors = append([]SyncError(nil), o.snapshot.Errors...)

	return snap
}

// publish applies a mutation to the observable state and notifies the
// change callback with a copy.
func (o *Orchestrator) publish(mutate func(*Snapshot)) {
	o.stateMu.Lock()
	mutate(&o.snapshot)
	snap := o.snapshotLocked()
	cb := o.onChange
	o.stateMu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

// RunCycle executes one full sync cycle over all libraries. Returns
// ErrSyncInProgress when another cycle holds the guard. A whole-cycle
// failure (listing libraries) flips status to error; per-library and
// per-action failures are recorded and the cycle continues.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if !o.cycleMu.TryLock() {
		o.logger.Debug("cycle request dropped: already syncing")
		return ErrSyncInProgress
	}
	defer o.cycleMu.Unlock()

	started := o.nowFunc()

	o.publish(func(s *Snapshot) {
		s.Status = StatusSyncing
		s.Progress = 0
		s.CurrentOperation = "listing libraries"
		s.Errors = nil
	})

	libs, err := o.client.ListLibraries(ctx)
	if err != nil {
		o.recordError(ctx, SyncError{Message: fmt.Sprintf("listing libraries: %v", err)})
		o.publish(func(s *Snapshot) {
			s.Status = StatusError
			s.CurrentOperation = ""
		})

		return fmt.Errorf("sync: listing libraries: %w", err)
	}

	o.publish(func(s *Snapshot) {
		s.Libraries = append([]seafile.Library(nil), libs...)
	})

	var failures int

	for i, lib := range libs {
		o.publish(func(s *Snapshot) {
			s.Progress = float64(i) / float64(len(libs))
			s.CurrentOperation = "syncing " + lib.Name
		})

		if err := o.syncLibrary(ctx, lib, started); err != nil {
			failures++

			o.recordError(ctx, SyncError{
				Message:     err.Error(),
				LibraryName: lib.Name,
			})
		}
	}

	o.publish(func(s *Snapshot) {
		s.Progress = 1
		s.CurrentOperation = ""
		s.LastSyncTime = started

		if failures > 0 {
			s.Status = StatusError
		} else {
			s.Status = StatusIdle
		}
	})

	o.logger.Info("cycle complete",
		slog.Int("libraries", len(libs)),
		slog.Int("failures", failures),
		slog.Duration("elapsed", o.nowFunc().Sub(started)),
	)

	return nil
}

// syncLibrary runs the reconcile+execute pass for one library and writes
// its new baseline.
func (o *Orchestrator) syncLibrary(ctx context.Context, lib seafile.Library, started time.Time) error {
	if lib.Encrypted {
		if err := o.unlockLibrary(ctx, lib); err != nil {
			return err
		}
	}

	localRoot := filepath.Join(o.syncRoot, lib.Name)
	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return fmt.Errorf("creating local root %s: %w", localRoot, err)
	}

	remote, err := o.client.ListRecursive(ctx, lib.ID, "/")
	if err != nil {
		return fmt.Errorf("listing library %s: %w", lib.Name, err)
	}

	local, err := o.scanner.Scan(ctx, localRoot)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", localRoot, err)
	}

	// A baseline read failure degrades to first-time sync, which is safe
	// under last-modified-wins.
	state, err := o.store.GetState(ctx, lib.ID)
	if err != nil {
		o.logger.Warn("baseline read failed, treating as first sync",
			slog.String("library", lib.Name),
			slog.String("error", err.Error()),
		)

		state = nil
	}

	baseline := BaselineByPath(state)

	plan := Reconcile(ReconcileInput{
		Remote:   remote,
		Local:    local,
		Baseline: baseline,
		ReadOnly: lib.ReadOnly(),
	})

	results := o.executor.Execute(ctx, lib.ID, localRoot, plan)

	for _, r := range results {
		if r.Err != nil {
			o.recordError(ctx, SyncError{
				Message:     r.Err.Error(),
				LibraryName: lib.Name,
				Path:        r.Action.Path,
			})
		}
	}

	newState := buildBaseline(lib.ID, remote, baseline, results, started)

	// A half-written baseline is worse than a stale one; save failures
	// abort the library so the old baseline stays authoritative.
	if err := o.store.SaveState(ctx, newState); err != nil {
		return fmt.Errorf("saving baseline for %s: %w", lib.Name, err)
	}

	return nil
}

// unlockLibrary supplies the stored password for an encrypted library.
func (o *Orchestrator) unlockLibrary(ctx context.Context, lib seafile.Library) error {
	password, err := o.secrets.LibraryPassword(lib.ID)
	if err != nil {
		return fmt.Errorf("reading password for %s: %w", lib.Name, err)
	}

	if password == "" {
		return fmt.Errorf("encrypted library %s needs a password (run: seasync login --library-password)", lib.Name)
	}

	if err := o.client.SetLibraryPassword(ctx, lib.ID, password); err != nil {
		if errors.Is(err, seafile.ErrIncorrectPassword) {
			return fmt.Errorf("stored password for %s was rejected", lib.Name)
		}

		return fmt.Errorf("unlocking %s: %w", lib.Name, err)
	}

	return nil
}

// buildBaseline derives the new baseline from the cycle-start remote
// listing, filtered by execution outcomes so a failed action cannot be
// recorded as agreed state:
//
//   - entries whose download or mkdir failed are dropped (retried next cycle)
//   - entries deleted remotely are dropped on success, kept on failure
//   - entries overwritten by a successful upload are dropped; their fresh
//     identity appears in the next cycle's listing
//   - rows for paths whose local delete failed are carried over from the
//     old baseline so the failure is not mistaken for a new local file
func buildBaseline(
	libraryID string,
	remote []seafile.Entry,
	oldBaseline map[string]SyncedFile,
	results []ActionResult,
	started time.Time,
) *SyncState {
	dropped := make(map[string]bool)
	carryOver := make(map[string]bool)

	for _, r := range results {
		switch r.Action.Type {
		case ActionDownload, ActionCreateDirectory:
			if r.Err != nil {
				dropped[r.Action.Path] = true
			}
		case ActionUpload:
			if r.Err == nil {
				dropped[r.Action.Path] = true
			}
		case ActionDeleteRemote:
			if r.Err == nil {
				dropped[r.Action.Path] = true
			}
		case ActionDeleteLocal:
			if r.Err != nil {
				carryOver[r.Action.Path] = true
			}
		}
	}

	state := &SyncState{
		LibraryID:    libraryID,
		LastSyncTime: started.Unix(),
	}

	for _, e := range remote {
		if dropped[e.Path] {
			continue
		}

		state.Files = append(state.Files, SyncedFile{
			Path:     e.Path,
			ObjectID: e.ObjectID,
			Mtime:    e.Mtime,
			Size:     e.Size,
			IsDir:    e.IsDir,
		})
	}

	for path := range carryOver {
		if f, ok := oldBaseline[path]; ok {
			state.Files = append(state.Files, f)
		}
	}

	return state
}

// recordError appends an error record to the observable list and
// persists it best-effort.
func (o *Orchestrator) recordError(ctx context.Context, rec SyncError) {
	rec.ID = uuid.New().String()
	rec.Timestamp = o.nowFunc()

	o.publish(func(s *Snapshot) {
		s.Errors = append(s.Errors, rec)
	})

	if err := o.store.SaveError(ctx, rec); err != nil {
		o.logger.Warn("persisting error record failed",
			slog.String("error", err.Error()),
		)
	}

	o.logger.Error("sync error",
		slog.String("library", rec.LibraryName),
		slog.String("path", rec.Path),
		slog.String("message", rec.Message),
	)
}
