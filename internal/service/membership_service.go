package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipService gates and records room membership and messages.
type MembershipService struct {
	db        *gorm.DB
	catalog   *RoomCatalog
	profiles  identity.Profiles
	transport realtime.Transport
	log       *zap.Logger
	opts      options
}

// NewMembershipService creates a membership service.
func NewMembershipService(
	db *gorm.DB,
	catalog *RoomCatalog,
	profiles identity.Profiles,
	transport realtime.Transport,
	log *zap.Logger,
	opts ...Option,
) *MembershipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MembershipService{
		db:        db,
		catalog:   catalog,
		profiles:  profiles,
		transport: transport,
		log:       log,
		opts:      buildOptions(opts),
	}
}

// Join adds userID to the room (a repeated join is a no-op) and returns
// the membership with the most recent messages, oldest first. Alumni rooms
// require graduation year, school and the verified flag.
func (s *MembershipService) Join(ctx context.Context, userID, roomID string) (*model.Membership, error) {
	room, err := s.catalog.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Kind == model.RoomKindAlumni {
		prof, err := s.profiles.Profile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !prof.AlumniVerified() {
			s.opts.metrics.join("denied")
			return nil, fmt.Errorf("alumni room %s: %w", room.Name, errs.ErrAccessDenied)
		}
	}

	ent := &model.RoomMemberEntity{RoomID: room.ID, UserID: userID, JoinedAt: s.opts.clock()}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ent)
	if res.Error != nil {
		return nil, fmt.Errorf("insert membership: %w", res.Error)
	}
	var member model.RoomMemberEntity
	if err := s.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", room.ID, userID).First(&member).Error; err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if res.RowsAffected == 1 {
		s.opts.metrics.join("joined")
		s.publish(ctx, realtime.EventMemberJoined, room.ID, realtime.MemberPayload{UserID: userID})
	} else {
		s.opts.metrics.join("rejoined")
	}

	msgs, err := s.recent(ctx, room.ID, s.opts.historyLimit)
	if err != nil {
		return nil, err
	}
	return &model.Membership{Room: *room, UserID: userID, JoinedAt: member.JoinedAt, Messages: msgs}, nil
}

// Leave removes the membership and drops the user's live subscriptions to
// the room. Leaving a room one is not in is not an error.
func (s *MembershipService) Leave(ctx context.Context, userID, roomID string) error {
	if !validRoomID(roomID) {
		return nil
	}
	res := s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.RoomMemberEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		// Transports cut the leaver's room subscriptions off on member.left.
		s.publish(ctx, realtime.EventMemberLeft, roomID, realtime.MemberPayload{UserID: userID})
	}
	return nil
}

// IsMember reports whether userID belongs to roomID. A malformed room id
// is ErrRoomNotFound.
func (s *MembershipService) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	if !validRoomID(roomID) {
		return false, errs.ErrRoomNotFound
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&model.RoomMemberEntity{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

// PostMessage appends a message to the room. Content is trimmed; blank
// content and non-members are rejected.
func (s *MembershipService) PostMessage(ctx context.Context, userID, roomID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, errs.ErrContentTooLong
	}
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return nil, err
	}
	ent := &model.RoomMessageEntity{
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.opts.clock(),
	}
	if err := s.db.WithContext(ctx).Create(ent).Error; err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	s.opts.metrics.messagePosted()
	msg := entityToMessage(ent)
	s.publish(ctx, realtime.EventMessageCreated, roomID, msg)
	return &msg, nil
}

// History returns up to limit recent messages, oldest first, to a member.
func (s *MembershipService) History(ctx context.Context, userID, roomID string, limit int) ([]model.Message, error) {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.historyLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.recent(ctx, roomID, limit)
}

func (s *MembershipService) requireMember(ctx context.Context, userID, roomID string) error {
	ok, err := s.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.catalog.Get(ctx, roomID); err != nil {
		return err
	}
	return errs.ErrNotAMember
}

// recent loads the newest limit messages and returns them oldest first.
func (s *MembershipService) recent(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	var ents []model.RoomMessageEntity
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&ents).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	out := make([]model.Message, len(ents))
	for i := range ents {
		out[len(ents)-1-i] = entityToMessage(&ents[i])
	}
	return out, nil
}

func (s *MembershipService) publish(ctx context.Context, typ, room string, payload any) {
	if s.transport == nil {
		return
	}
	ev := realtime.Event{Type: typ, Room: room, Payload: payload, At: s.opts.clock()}
	if err := s.transport.Publish(ctx, ev); err != nil {
		s.log.Warn("realtime publish failed", zap.String("type", typ), zap.String("room", room), zap.Error(err))
	}
}

func validRoomID(roomID string) bool {
	_, err := uuid.Parse(roomID)
	return err == nil
}

func entityToMessage(ent *model.RoomMessageEntity) model.Message {
	return model.Message{
		ID:        ent.ID,
		RoomID:    ent.RoomID,
		UserID:    ent.UserID,
		Content:   ent.Content,
		CreatedAt: ent.CreatedAt,
	}
}
