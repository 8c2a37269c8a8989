package telehealth

import (
	"context"
	"time"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

// Signaler relays the engine's outgoing negotiation candidates to a session
// participant. The wire format is the collaborator's concern.
type Signaler interface {
	SendCandidate(sessionID, userID, candidate string) error
}

// Directory resolves display names for chat and participant records.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type AuditEvent struct {
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Detail       string `json:"detail,omitempty"`
}

// AuditLog records compliance events. Calls are fire-and-forget; failures
// must not propagate into session handling.
type AuditLog interface {
	Record(event AuditEvent)
}

// HistoryStore persists ended sessions, one row per participant.
type HistoryStore interface {
	Append(ctx context.Context, userID string, session *models.TeleSession) error
	List(ctx context.Context, userID string, limit int) ([]models.TeleSession, error)
}

// Presence tracks which session ids are live in this process.
type Presence interface {
	Add(ctx context.Context, sessionID string) error
	Remove(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// Recorder pumps capture data into fixed-interval chunks until the returned
// stop function is called.
type Recorder interface {
	Start(stream CaptureStream, chunkEvery time.Duration, onChunk func(chunk []byte)) (stop func(), err error)
}

// ArtifactStore assembles recording chunks into a retrievable artifact.
type ArtifactStore interface {
	Save(ctx context.Context, recordingID string, chunks [][]byte) (fileURL string, size int64, err error)
}
