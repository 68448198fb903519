package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Alumni scopes and GET /room request types.
const (
	AlumniGeneralScope = "general"
	RoomTypeAlumni     = "alumni"
	RoomTypeYear       = "year"

	alumniCategory = "alumni"
	maxRoomName    = 120
)

// RoomCatalog resolves logical room requests to stored rooms, creating
// them on first access.
type RoomCatalog struct {
	db       *gorm.DB
	profiles identity.Profiles
	log      *zap.Logger
	opts     options
}

// NewRoomCatalog creates a room catalog.
func NewRoomCatalog(db *gorm.DB, profiles identity.Profiles, log *zap.Logger, opts ...Option) *RoomCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomCatalog{db: db, profiles: profiles, log: log, opts: buildOptions(opts)}
}

// Resolve returns the room for (kind, scopeKey), creating it if absent.
// For alumni rooms scopeKey is a graduation year or "general"; otherwise it
// is the stable room name. Concurrent calls for the same scope return the
// same room: the unique name index decides the winner.
func (c *RoomCatalog) Resolve(ctx context.Context, kind model.RoomKind, scopeKey, category string) (*model.Room, error) {
	name, err := roomName(kind, scopeKey)
	if err != nil {
		return nil, err
	}
	if kind == model.RoomKindAlumni {
		category = alumniCategory
	}
	ent := &model.RoomEntity{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      string(kind),
		Category:  strings.TrimSpace(category),
		CreatedAt: c.opts.clock(),
	}
	res := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(ent)
	if res.Error != nil {
		return nil, fmt.Errorf("create room %q: %w", name, res.Error)
	}
	if res.RowsAffected == 1 {
		c.opts.metrics.roomCreated()
		c.log.Info("room created", zap.String("room_id", ent.ID), zap.String("name", name), zap.String("kind", string(kind)))
	}

	var got model.RoomEntity
	if err := c.db.WithContext(ctx).Where("name = ?", name).First(&got).Error; err != nil {
		return nil, fmt.Errorf("load room %q: %w", name, err)
	}
	if got.Kind != string(kind) {
		return nil, fmt.Errorf("room name %q is taken by a %s room: %w", name, got.Kind, errs.ErrInvalidScope)
	}
	return entityToRoom(&got), nil
}

// ResolveForUser maps the GET /room type parameter to an alumni room:
// "alumni" is the general alumni room, "year" the room of the caller's
// graduation year.
func (c *RoomCatalog) ResolveForUser(ctx context.Context, userID, requestType string) (*model.Room, error) {
	switch requestType {
	case RoomTypeAlumni:
		return c.Resolve(ctx, model.RoomKindAlumni, AlumniGeneralScope, "")
	case RoomTypeYear:
		prof, err := c.profiles.Profile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if prof.GraduationYear == nil {
			return nil, fmt.Errorf("user has no graduation year: %w", errs.ErrInvalidScope)
		}
		return c.Resolve(ctx, model.RoomKindAlumni, strconv.Itoa(*prof.GraduationYear), "")
	default:
		return nil, fmt.Errorf("unknown room type %q: %w", requestType, errs.ErrInvalidScope)
	}
}

// Get returns a room by ID.
func (c *RoomCatalog) Get(ctx context.Context, roomID string) (*model.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, errs.ErrRoomNotFound
	}
	var ent model.RoomEntity
	if err := c.db.WithContext(ctx).Where("id = ?", roomID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrRoomNotFound
		}
		return nil, err
	}
	return entityToRoom(&ent), nil
}

// List returns public rooms ordered by name, optionally filtered by
// category. Private and alumni rooms are reachable only by id or scope.
func (c *RoomCatalog) List(ctx context.Context, category string) ([]model.Room, error) {
	q := c.db.WithContext(ctx).Where("kind = ?", string(model.RoomKindPublic))
	if category = strings.TrimSpace(category); category != "" {
		q = q.Where("category = ?", category)
	}
	var ents []model.RoomEntity
	if err := q.Order("name").Find(&ents).Error; err != nil {
		return nil, err
	}
	out := make([]model.Room, 0, len(ents))
	for i := range ents {
		out = append(out, *entityToRoom(&ents[i]))
	}
	return out, nil
}

func roomName(kind model.RoomKind, scopeKey string) (string, error) {
	scopeKey = strings.TrimSpace(scopeKey)
	switch kind {
	case model.RoomKindAlumni:
		if scopeKey == AlumniGeneralScope {
			return "alumni-general", nil
		}
		year, err := strconv.Atoi(scopeKey)
		if err != nil || year < 1900 || year > 2100 {
			return "", fmt.Errorf("alumni scope %q: %w", scopeKey, errs.ErrInvalidScope)
		}
		return fmt.Sprintf("alumni-class-of-%d", year), nil
	case model.RoomKindPublic, model.RoomKindPrivate:
		if scopeKey == "" || len(scopeKey) > maxRoomName {
			return "", fmt.Errorf("room key must be 1-%d characters: %w", maxRoomName, errs.ErrInvalidScope)
		}
		return scopeKey, nil
	default:
		return "", fmt.Errorf("room kind %q: %w", kind, errs.ErrInvalidScope)
	}
}

func entityToRoom(ent *model.RoomEntity) *model.Room {
	return &model.Room{
		ID:        ent.ID,
		Name:      ent.Name,
		Kind:      model.RoomKind(ent.Kind),
		Category:  ent.Category,
		CreatedAt: ent.CreatedAt,
	}
}
