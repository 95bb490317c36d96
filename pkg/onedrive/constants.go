package onedrive

import "time"

// GraphBaseURL is the root of the Microsoft Graph v1.0 API.
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

// ConflictBehavior tells Graph what to do when an item with the same name
// already exists in the target folder.
type ConflictBehavior string

// Conflict behaviors accepted by @microsoft.graph.conflictBehavior.
const (
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
	ConflictRename  ConflictBehavior = "rename"
)

// Valid reports whether b is one of the conflict behaviors Graph understands.
func (b ConflictBehavior) Valid() bool {
	switch b {
	case ConflictFail, ConflictReplace, ConflictRename:
		return true
	default:
		return false
	}
}

// Upload constants
const (
	// ChunkAlignment is the unit every non-final upload chunk must be a multiple of.
	ChunkAlignment = 320 * 1024

	// DefaultChunkSize is 16 * 320 KiB (5 MiB).
	DefaultChunkSize = 16 * ChunkAlignment

	// DefaultMaxRetries bounds both per-chunk retries and session restarts.
	DefaultMaxRetries = 5

	// SimpleUploadMaxSize is the largest file sent with a single PUT.
	SimpleUploadMaxSize = 4 * 1024 * 1024
)

// Default HTTP Configuration Constants
const (
	DefaultTimeout      = 30 * time.Second
	DefaultChunkTimeout = 2 * time.Minute
	userAgent           = "onedrive-personal/0.1"
)

// Graph annotation keys
const (
	conflictBehaviorKey = "@microsoft.graph.conflictBehavior"
	nextLinkKey         = "@odata.nextLink"
)
