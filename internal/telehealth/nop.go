package telehealth

import (
	"context"
	"sync"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

// No-op collaborators keep the engine usable when an optional external
// system is not configured.

type nopDirectory struct{}

func (nopDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	return userID, nil
}

type nopSignaler struct{}

func (nopSignaler) SendCandidate(string, string, string) error { return nil }

type nopAudit struct{}

func (nopAudit) Record(AuditEvent) {}

type nopHistory struct{}

func (nopHistory) Append(context.Context, string, *models.TeleSession) error {
	return nil
}

func (nopHistory) List(context.Context, string, int) ([]models.TeleSession, error) {
	return nil, nil
}

// MemoryPresence keeps the active-session index in memory when Redis is not
// configured.
type MemoryPresence struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{ids: make(map[string]struct{})}
}

func (p *MemoryPresence) Add(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ids == nil {
		p.ids = make(map[string]struct{})
	}
	p.ids[sessionID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, sessionID)
	return nil
}

func (p *MemoryPresence) List(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	return ids, nil
}
