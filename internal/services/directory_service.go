package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// DirectoryService resolves display names for session participants and chat
// senders from the users table.
type DirectoryService struct {
	userRepo userReader
}

func NewDirectoryService(userRepo userReader) *DirectoryService {
	return &DirectoryService{userRepo: userRepo}
}

func (s *DirectoryService) DisplayName(ctx context.Context, userID string) (string, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", err
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if user.Name != "" {
		return user.Name, nil
	}
	if at := strings.IndexByte(user.Email, '@'); at > 0 {
		return user.Email[:at], nil
	}
	return user.Email, nil
}
