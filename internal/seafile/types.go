package seafile

// Library is one remote repository as returned by GET /api2/repos/.
// Fetched fresh each cycle; never persisted.
type Library struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Encrypted  bool   `json:"encrypted"`
	Permission string `json:"permission"` // "r" or "rw"
	Size       int64  `json:"size"`
	Mtime      int64  `json:"mtime"`
}

// ReadOnly reports whether the library rejects outbound mutations.
func (l Library) ReadOnly() bool {
	return l.Permission == "r"
}

// DirEntry is one child in a directory listing from
// GET /api2/repos/{id}/dir/. Name is the bare entry name; callers join it
// onto the listed directory to form a full path.
type DirEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"` // "file" or "dir"
	Mtime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.Type == "dir"
}

// Entry is a node of the flattened remote tree produced by ListRecursive.
// Path is absolute within the library and begins with "/".
type Entry struct {
	Path     string
	ObjectID string
	Mtime    int64
	Size     int64
	IsDir    bool
}
