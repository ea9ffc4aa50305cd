package sync

import (
	"sort"
	"strings"

	"github.com/seasync/seasync/internal/seafile"
)

// ReconcileInput is the three-way view of one library at cycle start.
type ReconcileInput struct {
	// Remote is the flattened remote tree in listing order.
	Remote []seafile.Entry

	// Local is the scanned local tree keyed by library-absolute path.
	Local map[string]LocalEntry

	// Baseline is the last successful cycle's remote tree keyed by path.
	// Empty for a first-time sync.
	Baseline map[string]SyncedFile

	// ReadOnly suppresses outbound mutations (uploads, remote deletes)
	// for libraries with "r" permission. Locally-originated changes are
	// simply not propagated; they do not error.
	ReadOnly bool
}

// Reconcile computes the ordered action plan for one library. It is a
// pure function over the three trees; last-modified-wins decides
// conflicting edits and the baseline disambiguates creations from
// deletions. The returned order guarantees each action's precondition
// holds when its turn comes: type-flip deletes first, then directory
// creates top-down, downloads, uploads, remote deletes children-first,
// local deletes children-first.
func Reconcile(in ReconcileInput) []Action {
	var (
		preDeletes []Action
		mkdirs     []Action
		downloads  []Action
		uploads    []Action
		delRemote  []Action
		delLocal   []Action
	)

	remoteByPath := make(map[string]seafile.Entry, len(in.Remote))
	for _, e := range in.Remote {
		remoteByPath[e.Path] = e
	}

	// Pass 1: descend the remote tree, emitting downloads and local mkdirs.
	for _, e := range in.Remote {
		local, inLocal := in.Local[e.Path]

		switch {
		case e.IsDir:
			if !inLocal {
				// A baseline directory missing locally is a local deletion
				// pending remote propagation, not a directory to recreate.
				if b, ok := in.Baseline[e.Path]; ok && b.IsDir {
					continue
				}

				mkdirs = append(mkdirs, Action{Type: ActionCreateDirectory, Path: e.Path, IsDir: true})

				continue
			}

			if !local.IsDir {
				// Type flip: a local file shadows a remote directory. The
				// file gives way so the directory's contents can land.
				preDeletes = append(preDeletes, Action{Type: ActionDeleteLocal, Path: e.Path})
				mkdirs = append(mkdirs, Action{Type: ActionCreateDirectory, Path: e.Path, IsDir: true})
			}

		case !inLocal:
			if b, ok := in.Baseline[e.Path]; ok && !b.IsDir {
				// In the baseline and gone locally: deletion propagation
				// (pass 3) owns this path.
				continue
			}

			downloads = append(downloads, Action{Type: ActionDownload, Path: e.Path, Mtime: e.Mtime})

		case local.IsDir:
			// Type flip: a local directory shadows a remote file.
			preDeletes = append(preDeletes, Action{Type: ActionDeleteLocal, Path: e.Path, IsDir: true})
			downloads = append(downloads, Action{Type: ActionDownload, Path: e.Path, Mtime: e.Mtime})

		case local.Mtime < e.Mtime:
			downloads = append(downloads, Action{Type: ActionDownload, Path: e.Path, Mtime: e.Mtime})

		case local.Mtime == e.Mtime:
			// Equal mtimes are in-sync unless the server-side content
			// identity moved since the last cycle.
			if b, ok := in.Baseline[e.Path]; ok && !b.IsDir && b.ObjectID != e.ObjectID {
				downloads = append(downloads, Action{Type: ActionDownload, Path: e.Path, Mtime: e.Mtime})
			}
		}
	}

	// Pass 2: walk local files, emitting uploads.
	if !in.ReadOnly {
		uploads = planUploads(in, remoteByPath)
	}

	// Pass 3: baseline-anchored deletion detection.
	for _, path := range sortedBaselinePaths(in.Baseline) {
		b := in.Baseline[path]
		remote, inRemote := remoteByPath[path]
		local, inLocal := in.Local[path]

		switch {
		case !inRemote && inLocal:
			// Deleted on the server. A local type flip means the baseline
			// entity is gone on both sides; the new local entity stays.
			if local.IsDir == b.IsDir {
				delLocal = append(delLocal, Action{Type: ActionDeleteLocal, Path: path, IsDir: b.IsDir})
			}

		case inRemote && !inLocal:
			// Deleted locally. A remote type flip means the baseline entity
			// is already gone remotely too.
			if !in.ReadOnly && remote.IsDir == b.IsDir {
				delRemote = append(delRemote, Action{Type: ActionDeleteRemote, Path: path, IsDir: b.IsDir})
			}
		}
	}

	sortTopDown(mkdirs)
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Path < uploads[j].Path })
	sortChildrenFirst(delRemote)
	sortChildrenFirst(delLocal)
	sortChildrenFirst(preDeletes)

	plan := make([]Action, 0,
		len(preDeletes)+len(mkdirs)+len(downloads)+len(uploads)+len(delRemote)+len(delLocal))
	plan = append(plan, preDeletes...)
	plan = append(plan, mkdirs...)
	plan = append(plan, downloads...)
	plan = append(plan, uploads...)
	plan = append(plan, delRemote...)
	plan = append(plan, delLocal...)

	return plan
}

// planUploads emits an upload for each local file that is either newer
// than its remote counterpart or genuinely new (absent from both the
// remote tree and the baseline). A local file absent from the remote but
// present in the baseline is a pending remote deletion, not an upload;
// without this distinction every server-side delete would resurrect.
func planUploads(in ReconcileInput, remoteByPath map[string]seafile.Entry) []Action {
	var uploads []Action

	for path, local := range in.Local {
		if local.IsDir {
			// Empty directories are not uploaded; directories with files
			// materialize remotely via their children's parent chains.
			continue
		}

		remote, inRemote := remoteByPath[path]

		if inRemote {
			if !remote.IsDir && local.Mtime > remote.Mtime {
				uploads = append(uploads, Action{Type: ActionUpload, Path: path})
			}

			// A remote directory at this path is a type flip handled in
			// pass 1; the local file is being replaced, not uploaded.
			continue
		}

		if b, ok := in.Baseline[path]; ok && !b.IsDir {
			continue
		}

		uploads = append(uploads, Action{Type: ActionUpload, Path: path})
	}

	return uploads
}

// sortedBaselinePaths returns baseline keys in ascending order so the
// plan is deterministic across runs.
func sortedBaselinePaths(baseline map[string]SyncedFile) []string {
	paths := make([]string, 0, len(baseline))
	for p := range baseline {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

// pathDepth counts the segments of a library-absolute path.
func pathDepth(p string) int {
	return strings.Count(p, "/")
}

// sortTopDown orders actions shallowest-first so parents exist before
// their children are created.
func sortTopDown(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		di, dj := pathDepth(actions[i].Path), pathDepth(actions[j].Path)
		if di != dj {
			return di < dj
		}

		return actions[i].Path < actions[j].Path
	})
}

// sortChildrenFirst orders actions deepest-first so children are removed
// before their parents.
func sortChildrenFirst(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		di, dj := pathDepth(actions[i].Path), pathDepth(actions[j].Path)
		if di != dj {
			return di > dj
		}

		return actions[i].Path > actions[j].Path
	})
}

// BaselineByPath indexes a state's rows for the reconciler. A nil state
// (never synced) yields an empty map.
func BaselineByPath(state *SyncState) map[string]SyncedFile {
	m := make(map[string]SyncedFile)

	if state == nil {
		return m
	}

	for _, f := range state.Files {
		m[f.Path] = f
	}

	return m
}
