package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/auth"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const (
	opResolveProfile    = "users.resolve_profile"
	opGetProfile        = "users.get_profile"
	opUpdateDisplayName = "users.update_display_name"
)

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user profiles derived from session claims.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// ResolveProfile returns the profile for the session, creating it on first
// sight and refreshing changed claim fields afterwards.
func (s *Service) ResolveProfile(ctx context.Context, claims auth.SessionClaims) (Profile, error) {
	userID := normalize(claims.UserID)
	if userID == "" {
		userID = normalize(claims.Subject)
	}
	if userID == "" {
		return Profile{}, apperr.New(opResolveProfile, "invalid_identity", apperr.Wrap(apperr.ErrInvalidInput, "%v", ErrInvalidIdentity))
	}

	if cached, ok := s.cache.Load(userID); ok {
		if profile, ok := cached.(Profile); ok && !claimsChanged(profile, claims) {
			return profile, nil
		}
	}

	db := s.db.WithContext(ctx)
	var profile Profile
	err := db.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:      userID,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  s.now().UTC(),
		}
		if err := db.Create(&profile).Error; err != nil {
			return Profile{}, apperr.New(opResolveProfile, "profile_insert_failed", err)
		}
	} else if err != nil {
		return Profile{}, apperr.New(opResolveProfile, "query_failed", err)
	} else {
		updates := map[string]interface{}{}
		if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
			updates["user_email"] = email
			profile.Email = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != profile.DisplayName && profile.DisplayName == "" {
			updates["user_display_name"] = display
			profile.DisplayName = display
		}
		if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != profile.AvatarURL {
			updates["user_avatar_url"] = avatar
			profile.AvatarURL = avatar
		}
		profile.LastSeenAt = s.now().UTC()
		updates["last_seen_at"] = profile.LastSeenAt
		if err := db.Model(&Profile{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
			return Profile{}, apperr.New(opResolveProfile, "profile_update_failed", err)
		}
	}

	s.cache.Store(userID, profile)
	return profile, nil
}

// GetProfile loads a stored profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", normalize(userID)).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperr.New(opGetProfile, "profile_not_found", apperr.Wrap(apperr.ErrNotFound, "user %s", userID))
	}
	if err != nil {
		return Profile{}, apperr.New(opGetProfile, "query_failed", err)
	}
	return profile, nil
}

// UpdateDisplayName sets a user-chosen name. Later sessions do not overwrite it.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) (Profile, error) {
	name := normalize(displayName)
	if name == "" || len([]rune(name)) > maxDisplayNameLength {
		return Profile{}, apperr.New(opUpdateDisplayName, "invalid_display_name",
			apperr.Wrap(apperr.ErrInvalidInput, "display name must be 1..%d characters", maxDisplayNameLength))
	}
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if err := s.db.WithContext(ctx).Model(&Profile{}).Where("user_id = ?", profile.UserID).Update("user_display_name", name).Error; err != nil {
		return Profile{}, apperr.New(opUpdateDisplayName, "profile_update_failed", err)
	}
	profile.DisplayName = name
	s.cache.Store(profile.UserID, profile)
	return profile, nil
}

func claimsChanged(profile Profile, claims auth.SessionClaims) bool {
	if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
		return true
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != profile.AvatarURL {
		return true
	}
	return profile.DisplayName == "" && normalize(claims.UserDisplayName) != ""
}
