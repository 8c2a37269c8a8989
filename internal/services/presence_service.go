package services

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "telehealth:active_sessions"

// PresenceService keeps the set of live session ids in Redis so that an
// operator (or a restarted process) can see which consultations were active.
type PresenceService struct {
	rdb *redis.Client
}

func NewPresenceService(rdb *redis.Client) *PresenceService {
	return &PresenceService{rdb: rdb}
}

func (s *PresenceService) Add(ctx context.Context, sessionID string) error {
	return s.rdb.SAdd(ctx, activeSessionsKey, sessionID).Err()
}

func (s *PresenceService) Remove(ctx context.Context, sessionID string) error {
	return s.rdb.SRem(ctx, activeSessionsKey, sessionID).Err()
}

func (s *PresenceService) List(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, activeSessionsKey).Result()
}
