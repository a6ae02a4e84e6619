package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileID derives the deterministic, stable identity for a path. The same
// path always yields the same fileId, across processes and runs.
func FileID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "file_" + hex.EncodeToString(sum[:])
}

// ChunkID derives the deterministic identity of a chunk from its owning
// file, its offsets, and its content hash. Any content change produces a
// new chunkId even at identical offsets, which is what lets the processor
// tell "content changed in place" apart from "nothing changed" by key
// lookup alone.
func ChunkID(fileID string, start, end int, chunkHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d#%d#%s", fileID, start, end, chunkHash)))
	return "c_" + hex.EncodeToString(sum[:])[:32]
}
