package telehealth

import (
	"time"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

// participantRegistry tracks the participants of one session. Capacity is
// enforced on add; disconnected participants are retained for post-session
// reporting.
type participantRegistry struct {
	capacity     int
	participants []*models.Participant
}

func newParticipantRegistry(capacity int) *participantRegistry {
	return &participantRegistry{capacity: capacity}
}

func (r *participantRegistry) add(p *models.Participant) bool {
	if len(r.participants) >= r.capacity {
		return false
	}
	r.participants = append(r.participants, p)
	return true
}

func (r *participantRegistry) byUserID(userID string) *models.Participant {
	for _, p := range r.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *participantRegistry) connectedCount() int {
	count := 0
	for _, p := range r.participants {
		if p.Status == models.ParticipantConnected {
			count++
		}
	}
	return count
}

func (r *participantRegistry) markDisconnected(userID string, at time.Time) *models.Participant {
	p := r.byUserID(userID)
	if p == nil || p.Status == models.ParticipantDisconnected {
		return nil
	}
	p.Status = models.ParticipantDisconnected
	left := at
	p.LeftAt = &left
	return p
}

// worstQuality aggregates the session-level quality band from the connected
// participants' latest samples.
func (r *participantRegistry) worstQuality() models.ConnectionQuality {
	rank := map[models.ConnectionQuality]int{
		models.QualityPoor:      0,
		models.QualityFair:      1,
		models.QualityGood:      2,
		models.QualityExcellent: 3,
	}
	worst := models.QualityExcellent
	for _, p := range r.participants {
		if p.Status != models.ParticipantConnected || p.Stats.Quality == "" {
			continue
		}
		if rank[p.Stats.Quality] < rank[worst] {
			worst = p.Stats.Quality
		}
	}
	return worst
}

func (r *participantRegistry) all() []*models.Participant {
	return r.participants
}
