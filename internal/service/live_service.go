package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/livekit"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TokenIssuer mints transport capabilities for a broadcaster.
type TokenIssuer interface {
	Configured() bool
	MintToken(roomName, identity string, canPublish bool) (*livekit.Token, error)
}

// StartResult is the outcome of a start: the live session and, when the
// transport is configured, a publish token for the broadcast room.
type StartResult struct {
	Session *model.LiveSession `json:"session"`
	Token   *livekit.Token     `json:"token,omitempty"`
	WSURL   string             `json:"ws_url,omitempty"`
}

// LiveService is the on-air state machine: idle -> live -> stopped.
// Stopped is terminal; a new broadcast is a new session.
type LiveService struct {
	db            *gorm.DB
	ledger        *AirtimeLedger
	issuer        TokenIssuer
	transport     realtime.Transport
	broadcastRoom string
	log           *zap.Logger
	opts          options
}

// NewLiveService creates the live session service. issuer and transport
// may be nil.
func NewLiveService(
	db *gorm.DB,
	ledger *AirtimeLedger,
	issuer TokenIssuer,
	transport realtime.Transport,
	broadcastRoom string,
	log *zap.Logger,
	opts ...Option,
) *LiveService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveService{
		db:            db,
		ledger:        ledger,
		issuer:        issuer,
		transport:     transport,
		broadcastRoom: broadcastRoom,
		log:           log,
		opts:          buildOptions(opts),
	}
}

// Start puts (userID, source) on air and opens its airtime entry in the
// same transaction. If that pair is already live the existing session is
// returned together with errs.ErrAlreadyLive.
func (s *LiveService) Start(ctx context.Context, userID string, source model.LiveSource) (*StartResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", errs.ErrInvalidInput)
	}
	if !source.Valid() {
		return nil, errs.ErrInvalidSource
	}
	if existing, err := s.findLive(ctx, userID, source); err != nil {
		return nil, err
	} else if existing != nil {
		return &StartResult{Session: existing}, errs.ErrAlreadyLive
	}

	now := s.opts.clock()
	ent := &model.LiveSessionEntity{
		ID:        uuid.New().String(),
		UserID:    userID,
		Source:    string(source),
		State:     string(model.LiveStateLive),
		StartedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		logID, err := s.ledger.withDB(tx).Open(ctx, userID, source, now)
		if err != nil {
			return err
		}
		ent.AirtimeLogID = logID
		return tx.Create(ent).Error
	})
	if err != nil {
		// The partial unique index rejected us: another request won the race.
		if existing, findErr := s.findLive(ctx, userID, source); findErr == nil && existing != nil {
			return &StartResult{Session: existing}, errs.ErrAlreadyLive
		}
		return nil, fmt.Errorf("start live session: %w", err)
	}

	sess := entityToLive(ent)
	res := &StartResult{Session: sess}
	if s.issuer != nil && s.issuer.Configured() {
		tok, err := s.issuer.MintToken(s.broadcastRoom, userID, true)
		if err != nil {
			s.log.Warn("mint publish token failed", zap.String("session_id", sess.ID), zap.Error(err))
		} else {
			res.Token = tok
		}
	}
	s.opts.metrics.sessionStarted(string(source))
	s.log.Info("live session started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.String("source", string(source)))
	s.publish(ctx, realtime.EventLiveStarted, sess)
	return res, nil
}

// Stop ends a live session and closes its airtime entry. Stopping an
// already stopped session returns it with errs.ErrAlreadyStopped so
// duplicate requests can be treated as success.
func (s *LiveService) Stop(ctx context.Context, sessionID string) (*model.LiveSession, error) {
	ent, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ent.State == string(model.LiveStateStopped) {
		return entityToLive(ent), errs.ErrAlreadyStopped
	}

	now := s.opts.clock()
	if now.Before(ent.StartedAt) {
		now = ent.StartedAt
	}
	dur := wholeSeconds(ent.StartedAt, now)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.LiveSessionEntity{}).
			Where("id = ? AND state = ?", ent.ID, string(model.LiveStateLive)).
			Updates(map[string]any{
				"state":        string(model.LiveStateStopped),
				"ended_at":     now,
				"duration_sec": dur,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrAlreadyStopped
		}
		_, err := s.ledger.withDB(tx).Close(ctx, ent.AirtimeLogID, now)
		return err
	})
	if errors.Is(err, errs.ErrAlreadyStopped) {
		// A concurrent stop got there first; report what it stored.
		latest, getErr := s.get(ctx, sessionID)
		if getErr != nil {
			return nil, getErr
		}
		return entityToLive(latest), errs.ErrAlreadyStopped
	}
	if err != nil {
		return nil, fmt.Errorf("stop live session: %w", err)
	}

	ent.State = string(model.LiveStateStopped)
	ent.EndedAt = &now
	ent.DurationSec = dur
	sess := entityToLive(ent)
	s.opts.metrics.sessionStopped(ent.Source, dur)
	s.log.Info("live session stopped",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.Int64("duration_sec", dur))
	s.publish(ctx, realtime.EventLiveStopped, sess)
	return sess, nil
}

// CurrentlyLive returns the user's live session, or nil when idle. With
// both sources live, the earliest started session is returned.
func (s *LiveService) CurrentlyLive(ctx context.Context, userID string) (*model.LiveSession, error) {
	var ents []model.LiveSessionEntity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, string(model.LiveStateLive)).
		Order("started_at").
		Limit(1).
		Find(&ents).Error
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, nil
	}
	return entityToLive(&ents[0]), nil
}

// Get returns a session by ID.
func (s *LiveService) Get(ctx context.Context, sessionID string) (*model.LiveSession, error) {
	ent, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return entityToLive(ent), nil
}

func (s *LiveService) findLive(ctx context.Context, userID string, source model.LiveSource) (*model.LiveSession, error) {
	var ents []model.LiveSessionEntity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND state = ?", userID, string(source), string(model.LiveStateLive)).
		Limit(1).
		Find(&ents).Error
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, nil
	}
	return entityToLive(&ents[0]), nil
}

func (s *LiveService) get(ctx context.Context, sessionID string) (*model.LiveSessionEntity, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, errs.ErrSessionNotFound
	}
	var ent model.LiveSessionEntity
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	return &ent, nil
}

func (s *LiveService) publish(ctx context.Context, typ string, sess *model.LiveSession) {
	if s.transport == nil {
		return
	}
	ev := realtime.Event{Type: typ, Room: realtime.LiveChannel, Payload: sess, At: s.opts.clock()}
	if err := s.transport.Publish(ctx, ev); err != nil {
		s.log.Warn("realtime publish failed", zap.String("type", typ), zap.Error(err))
	}
}

func entityToLive(ent *model.LiveSessionEntity) *model.LiveSession {
	return &model.LiveSession{
		ID:           ent.ID,
		UserID:       ent.UserID,
		Source:       model.LiveSource(ent.Source),
		State:        model.LiveState(ent.State),
		AirtimeLogID: ent.AirtimeLogID,
		StartedAt:    ent.StartedAt,
		EndedAt:      ent.EndedAt,
		DurationSec:  ent.DurationSec,
	}
}
