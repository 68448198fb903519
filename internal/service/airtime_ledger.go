package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AirtimeLedger is the append-mostly audit trail of broadcast time. An
// entry is opened once and closed exactly once.
type AirtimeLedger struct {
	db   *gorm.DB
	log  *zap.Logger
	opts options
}

// NewAirtimeLedger creates an airtime ledger.
func NewAirtimeLedger(db *gorm.DB, log *zap.Logger, opts ...Option) *AirtimeLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AirtimeLedger{db: db, log: log, opts: buildOptions(opts)}
}

// withDB returns a ledger bound to tx so callers can open or close entries
// inside their own transaction.
func (l *AirtimeLedger) withDB(tx *gorm.DB) *AirtimeLedger {
	cp := *l
	cp.db = tx
	return &cp
}

// Open inserts an entry with no end time and returns its id.
func (l *AirtimeLedger) Open(ctx context.Context, userID string, source model.LiveSource, startedAt time.Time) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required: %w", errs.ErrInvalidInput)
	}
	if !source.Valid() {
		return "", errs.ErrInvalidSource
	}
	ent := &model.AirtimeLogEntity{
		ID:        uuid.New().String(),
		UserID:    userID,
		Source:    string(source),
		StartedAt: startedAt.UTC(),
	}
	if err := l.db.WithContext(ctx).Create(ent).Error; err != nil {
		return "", fmt.Errorf("insert airtime log: %w", err)
	}
	l.log.Info("airtime opened", zap.String("log_id", ent.ID), zap.String("user_id", userID), zap.String("source", string(source)))
	return ent.ID, nil
}

// OpenNow opens an entry starting at the ledger's current time.
func (l *AirtimeLedger) OpenNow(ctx context.Context, userID string, source model.LiveSource) (string, error) {
	return l.Open(ctx, userID, source, l.opts.clock())
}

// Close records endedAt and the whole-second duration. Closing twice fails
// with errs.ErrAlreadyClosed and leaves the stored duration untouched.
func (l *AirtimeLedger) Close(ctx context.Context, entryID string, endedAt time.Time) (*model.AirtimeEntry, error) {
	ent, err := l.get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if ent.EndedAt != nil {
		return nil, errs.ErrAlreadyClosed
	}
	endedAt = endedAt.UTC()
	if endedAt.Before(ent.StartedAt) {
		endedAt = ent.StartedAt
	}
	dur := wholeSeconds(ent.StartedAt, endedAt)
	res := l.db.WithContext(ctx).Model(&model.AirtimeLogEntity{}).
		Where("id = ? AND ended_at IS NULL", entryID).
		Updates(map[string]any{"ended_at": endedAt, "duration_sec": dur})
	if res.Error != nil {
		return nil, fmt.Errorf("close airtime log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrAlreadyClosed
	}
	ent.EndedAt = &endedAt
	ent.DurationSec = &dur
	l.log.Info("airtime closed", zap.String("log_id", entryID), zap.Int64("duration_sec", dur))
	return entityToAirtime(ent), nil
}

// CloseStandalone closes an entry opened through the admin endpoint at the
// current time. Entries owned by a live session are closed by stopping
// the session instead.
func (l *AirtimeLedger) CloseStandalone(ctx context.Context, entryID string) (*model.AirtimeEntry, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&model.LiveSessionEntity{}).
		Where("airtime_log_id = ? AND state = ?", entryID, string(model.LiveStateLive)).
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, errs.ErrLogInUse
	}
	return l.Close(ctx, entryID, l.opts.clock())
}

// List returns up to limit entries, most recent start first.
func (l *AirtimeLedger) List(ctx context.Context, limit int) ([]model.AirtimeEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var ents []model.AirtimeLogEntity
	err := l.db.WithContext(ctx).Order("started_at DESC").Order("id").Limit(limit).Find(&ents).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.AirtimeEntry, 0, len(ents))
	for i := range ents {
		out = append(out, *entityToAirtime(&ents[i]))
	}
	return out, nil
}

// Get returns one entry.
func (l *AirtimeLedger) Get(ctx context.Context, entryID string) (*model.AirtimeEntry, error) {
	ent, err := l.get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return entityToAirtime(ent), nil
}

// TotalForUser sums the closed airtime of userID in seconds.
func (l *AirtimeLedger) TotalForUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).Model(&model.AirtimeLogEntity{}).
		Select("COALESCE(SUM(duration_sec), 0)").
		Where("user_id = ? AND ended_at IS NOT NULL", userID).
		Scan(&total).Error
	return total, err
}

func (l *AirtimeLedger) get(ctx context.Context, entryID string) (*model.AirtimeLogEntity, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil, errs.ErrLogNotFound
	}
	var ent model.AirtimeLogEntity
	if err := l.db.WithContext(ctx).Where("id = ?", entryID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrLogNotFound
		}
		return nil, err
	}
	return &ent, nil
}

func entityToAirtime(ent *model.AirtimeLogEntity) *model.AirtimeEntry {
	return &model.AirtimeEntry{
		ID:          ent.ID,
		UserID:      ent.UserID,
		Source:      model.LiveSource(ent.Source),
		StartedAt:   ent.StartedAt,
		EndedAt:     ent.EndedAt,
		DurationSec: ent.DurationSec,
	}
}
