package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minGraduationYear = 1900
	maxGraduationYear = 2100
)

// ProfileStore implements Profiles over the users table.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a profile store.
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Profile returns the stored profile. A user without a row has an empty,
// unverified profile.
func (s *ProfileStore) Profile(ctx context.Context, userID string) (model.Profile, error) {
	var ent model.UserEntity
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Profile{UserID: userID}, nil
	}
	if err != nil {
		return model.Profile{}, err
	}
	return entityToProfile(&ent), nil
}

// Verify records a self-reported graduation year and school and marks the
// user verified. No document check is performed.
func (s *ProfileStore) Verify(ctx context.Context, userID string, graduationYear int, school string) (model.Profile, error) {
	school = strings.TrimSpace(school)
	if school == "" {
		return model.Profile{}, fmt.Errorf("school is required: %w", errs.ErrInvalidInput)
	}
	if graduationYear < minGraduationYear || graduationYear > maxGraduationYear {
		return model.Profile{}, fmt.Errorf("graduation year %d out of range: %w", graduationYear, errs.ErrInvalidInput)
	}
	now := time.Now().UTC()
	ent := &model.UserEntity{
		ID:             userID,
		GraduationYear: &graduationYear,
		School:         &school,
		IsVerified:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"graduation_year", "school", "is_verified", "updated_at"}),
	}).Create(ent).Error
	if err != nil {
		return model.Profile{}, err
	}
	return s.Profile(ctx, userID)
}

func entityToProfile(ent *model.UserEntity) model.Profile {
	return model.Profile{
		UserID:         ent.ID,
		GraduationYear: ent.GraduationYear,
		School:         ent.School,
		IsVerified:     ent.IsVerified,
	}
}
