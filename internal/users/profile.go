package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/flashy-edu/flashy/internal/shared"
)

// Profile limits, in characters.
const (
	maxNameLength = 120
	maxBioLength  = 1024
)

// Profile holds the self-managed details attached to an account.
type Profile struct {
	UserID    int64      `json:"user_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Bio       string     `json:"bio"`
	RoleTitle string     `json:"role_title"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ProfileUpdate is a partial update: nil fields keep their stored value.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Bio       *string
	RoleTitle *string
}

// ProfileView is the caller's account together with its profile.
type ProfileView struct {
	User    User    `json:"user"`
	Profile Profile `json:"profile"`
}

// ProfileStore persists profiles.
type ProfileStore interface {
	FindProfile(ctx context.Context, userID int64) (Profile, error)
	UpsertProfile(ctx context.Context, userID int64, update ProfileUpdate) (Profile, error)
}

// ProfileService reads and edits the caller's own profile.
type ProfileService struct {
	users    RepositoryPort
	profiles ProfileStore
	logger   *slog.Logger
}

// NewProfileService builds a ProfileService.
func NewProfileService(users RepositoryPort, profiles ProfileStore, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{users: users, profiles: profiles, logger: logger}
}

// Get returns the account and profile of userID. Accounts without a profile row get an empty one.
func (s *ProfileService) Get(ctx context.Context, userID int64) (ProfileView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ProfileView{}, err
	}
	profile, err := s.profiles.FindProfile(ctx, userID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		profile = Profile{UserID: userID}
	case err != nil:
		return ProfileView{}, err
	}
	return ProfileView{User: user, Profile: profile}, nil
}

// Update applies a partial update, creating the profile row on first write.
func (s *ProfileService) Update(ctx context.Context, userID int64, update ProfileUpdate) (Profile, error) {
	update = update.trimmed()
	if err := update.validate(); err != nil {
		return Profile{}, err
	}
	profile, err := s.profiles.UpsertProfile(ctx, userID, update)
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("profile updated", slog.Int64("user_id", userID))
	return profile, nil
}

func (u ProfileUpdate) trimmed() ProfileUpdate {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	return ProfileUpdate{
		FirstName: trim(u.FirstName),
		LastName:  trim(u.LastName),
		Bio:       trim(u.Bio),
		RoleTitle: trim(u.RoleTitle),
	}
}

func (u ProfileUpdate) validate() error {
	checks := []struct {
		field string
		value *string
		max   int
	}{
		{"first_name", u.FirstName, maxNameLength},
		{"last_name", u.LastName, maxNameLength},
		{"bio", u.Bio, maxBioLength},
		{"role_title", u.RoleTitle, maxNameLength},
	}
	for _, c := range checks {
		if c.value != nil && utf8.RuneCountInString(*c.value) > c.max {
			return fmt.Errorf("%w: %s must be at most %d characters", shared.ErrValidation, c.field, c.max)
		}
	}
	return nil
}
