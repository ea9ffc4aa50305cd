// Package sync implements the sync engine: the durable baseline store,
// the local scanner, the three-way reconciler, the action executor, and
// the orchestrator that ties them together into cycles.
package sync

import (
	"time"

	"github.com/seasync/seasync/internal/seafile"
)

// SyncedFile is one baseline row: what the remote tree looked like at a
// path at the end of the last successful cycle. Paths are absolute within
// the library and begin with "/". Directories have Size 0 and their
// ObjectID is ignored for change detection.
type SyncedFile struct {
	Path     string
	ObjectID string
	Mtime    int64 // seconds since epoch
	Size     int64
	IsDir    bool
}

// SyncState is the persisted state for one library: the last successful
// cycle's timestamp and its full remote tree.
type SyncState struct {
	LibraryID    string
	LastSyncTime int64 // seconds since epoch
	Files        []SyncedFile
}

// LocalEntry is one node of the scanned local tree. Mtime is floor
// seconds since epoch; directories report their stat mtime but it is not
// consulted for change detection.
type LocalEntry struct {
	Mtime int64
	IsDir bool
}

// ActionType enumerates the operations the reconciler can plan.
type ActionType int

const (
	// ActionCreateDirectory creates a local directory.
	ActionCreateDirectory ActionType = iota
	// ActionDownload transfers a remote file to the local tree.
	ActionDownload
	// ActionUpload transfers a local file to the library.
	ActionUpload
	// ActionDeleteRemote removes a file or directory from the library.
	ActionDeleteRemote
	// ActionDeleteLocal removes a file or directory from the local tree.
	ActionDeleteLocal
)

// String returns the action name for logs.
func (t ActionType) String() string {
	switch t {
	case ActionCreateDirectory:
		return "create_directory"
	case ActionDownload:
		return "download"
	case ActionUpload:
		return "upload"
	case ActionDeleteRemote:
		return "delete_remote"
	case ActionDeleteLocal:
		return "delete_local"
	default:
		return "unknown"
	}
}

// Action is one planned operation. Path is the library-absolute path the
// action applies to; the executor derives the matching filesystem path
// from the library's local root. IsDir distinguishes the remote delete
// endpoint and local removal mode.
type Action struct {
	Type  ActionType
	Path  string
	IsDir bool

	// Mtime carries the remote mtime for downloads so the executor can
	// stamp the local file after the transfer.
	Mtime int64
}

// SyncError is one captured per-action or per-library failure, surfaced
// on the observable error list.
type SyncError struct {
	ID          string
	Message     string
	Timestamp   time.Time
	LibraryName string
	Path        string
}

// Status is the orchestrator's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusPaused  Status = "paused"
)

// Snapshot is a point-in-time copy of the observable state. Slices are
// copies; callers may retain them.
type Snapshot struct {
	Status           Status
	CurrentOperation string
	Progress         float64 // library_index / library_count, in [0,1]
	LastSyncTime     time.Time
	Libraries        []seafile.Library
	Errors           []SyncError
}
