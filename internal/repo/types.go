package repo

// FileStatus is the lifecycle state of a File row.
type FileStatus string

const (
	FileStatusIndexed  FileStatus = "indexed"
	FileStatusIndexing FileStatus = "indexing"
	FileStatusFailed   FileStatus = "failed"
	FileStatusDeleted  FileStatus = "deleted"
	FileStatusIgnored  FileStatus = "ignored"
)

// JobType tags the kind of work a Job represents.
type JobType string

const (
	JobTypeIndex     JobType = "index"
	JobTypeDelete    JobType = "delete"
	JobTypeReconcile JobType = "reconcile"
)

// JobStatus is the lifecycle state of a Job row.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// File represents a known path on disk, per spec.md §3.
type File struct {
	FileID           string
	Path             string
	Size             int64
	MtimeMs          int64
	Inode            *int64
	Status           FileStatus
	LastIndexTimeMs  *int64
	LastError        *string
	CreatedAtMs      int64
	UpdatedAtMs      int64
}

// Chunk represents a character range of a file.
type Chunk struct {
	ChunkID     string
	FileID      string
	SourcePath  string
	StartOffset *int
	EndOffset   *int
	ChunkHash   string
	TokenCount  *int
	UpdatedAtMs int64
}

// FtsChunk is a lexical index row.
type FtsChunk struct {
	ChunkID    string
	FileID     string
	SourcePath string
	Title      string
	Text       string
}

// FtsHit is one row returned by a full-text search, ordered by ascending
// BM25 score (lower is better, per spec.md §4.1).
type FtsHit struct {
	ChunkID    string
	FileID     string
	SourcePath string
	Text       string
	Score      float64
}

// Job is a unit of work for the worker pool.
type Job struct {
	JobID       string
	Path        string
	JobType     JobType
	Status      JobStatus
	Reason      string
	Attempt     int
	Error       *string
	NextRunAtMs int64
	CreatedAtMs int64
	UpdatedAtMs int64
}

// SourceTombstone represents a user-requested source removal that must be
// honoured at next startup even if the process crashed mid-deletion.
type SourceTombstone struct {
	Path          string
	DeletedTimeMs int64
}
