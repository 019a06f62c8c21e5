package recording

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Artifact is a finalized recording. Data must not be modified once the
// artifact has been returned.
type Artifact struct {
	ID        uuid.UUID
	MediaType string
	Data      []byte
	Digest    [blake2b.Size256]byte
	Chunks    int
	StartedAt time.Time
	StoppedAt time.Time

	// DroppedFrames counts frames the encoder skipped under load.
	DroppedFrames uint64
}

// NewArtifact concatenates chunks in order.
func NewArtifact(mediaType string, chunks [][]byte) *Artifact {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}
	return &Artifact{
		ID:        uuid.New(),
		MediaType: mediaType,
		Data:      data,
		Digest:    blake2b.Sum256(data),
		Chunks:    len(chunks),
	}
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// DigestHex returns the BLAKE2b-256 digest as lowercase hex.
func (a *Artifact) DigestHex() string {
	return hex.EncodeToString(a.Digest[:])
}

// Filename is a stable name for storage.
func (a *Artifact) Filename() string {
	return a.ID.String() + FileExtension(a.MediaType)
}

// Duration is the wall-clock length of the recording.
func (a *Artifact) Duration() time.Duration {
	return a.StoppedAt.Sub(a.StartedAt)
}
