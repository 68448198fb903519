package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"github.com/psds-microservice/onair-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type membershipFixture struct {
	db       *gorm.DB
	clock    *testutil.Clock
	catalog  *RoomCatalog
	profiles *identity.ProfileStore
	events   *realtime.Recorder
	svc      *MembershipService
}

func newMembershipFixture(t *testing.T, opts ...Option) *membershipFixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	log := zaptest.NewLogger(t)
	profiles := identity.NewProfileStore(db)
	events := &realtime.Recorder{}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	catalog := NewRoomCatalog(db, profiles, log, opts...)
	return &membershipFixture{
		db:       db,
		clock:    clock,
		catalog:  catalog,
		profiles: profiles,
		events:   events,
		svc:      NewMembershipService(db, catalog, profiles, events, log, opts...),
	}
}

// stubProfiles returns a fixed profile for every user.
type stubProfiles struct {
	p model.Profile
}

func (s stubProfiles) Profile(_ context.Context, userID string) (model.Profile, error) {
	p := s.p
	p.UserID = userID
	return p, nil
}

func (s stubProfiles) Verify(context.Context, string, int, string) (model.Profile, error) {
	return s.p, nil
}

func TestAlumniGating(t *testing.T) {
	year := 2012
	school := "Westfield High"
	empty := ""

	cases := []struct {
		name    string
		profile model.Profile
		allowed bool
	}{
		{"nothing", model.Profile{}, false},
		{"year only", model.Profile{GraduationYear: &year}, false},
		{"school only", model.Profile{School: &school, IsVerified: true}, false},
		{"unverified", model.Profile{GraduationYear: &year, School: &school}, false},
		{"blank school", model.Profile{GraduationYear: &year, School: &empty, IsVerified: true}, false},
		{"verified", model.Profile{GraduationYear: &year, School: &school, IsVerified: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			db := testutil.NewDB(t)
			profiles := stubProfiles{p: tc.profile}
			catalog := NewRoomCatalog(db, profiles, nil)
			svc := NewMembershipService(db, catalog, profiles, nil, nil)

			room, err := catalog.Resolve(ctx, model.RoomKindAlumni, "2012", "")
			require.NoError(t, err)
			user := testutil.UserID()
			_, err = svc.Join(ctx, user, room.ID)
			if tc.allowed {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, errs.ErrAccessDenied)
			}
			ok, err := svc.IsMember(ctx, user, room.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, ok)
		})
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	room, err := f.catalog.Resolve(ctx, model.RoomKindPublic, "lobby", "general")
	require.NoError(t, err)
	user := testutil.UserID()

	first, err := f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)

	assert.True(t, first.JoinedAt.Equal(second.JoinedAt), "rejoin keeps the original join time")
	var n int64
	require.NoError(t, f.db.Model(&model.RoomMemberEntity{}).Where("room_id = ?", room.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.events.Events(realtime.EventMemberJoined), 1)
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newMembershipFixture(t)
	_, err := f.svc.Join(context.Background(), testutil.UserID(), testutil.UserID())
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestPostMessageAndHistory(t *testing.T) {
	f := newMembershipFixture(t, WithHistoryLimit(3))
	ctx := context.Background()
	room, err := f.catalog.Resolve(ctx, model.RoomKindPublic, "lobby", "general")
	require.NoError(t, err)
	user := testutil.UserID()
	_, err = f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		f.clock.Advance(time.Second)
		msg, err := f.svc.PostMessage(ctx, user, room.ID, fmt.Sprintf("  track %d  ", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("track %d", i), msg.Content)
	}

	joined, err := f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)
	require.Len(t, joined.Messages, 3)
	assert.Equal(t, "track 3", joined.Messages[0].Content)
	assert.Equal(t, "track 5", joined.Messages[2].Content)

	all, err := f.svc.History(ctx, user, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	created := f.events.Events(realtime.EventMessageCreated)
	require.Len(t, created, 5)
	assert.Equal(t, room.ID, created[0].Room)
}

func TestPostMessageRejects(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	room, err := f.catalog.Resolve(ctx, model.RoomKindPublic, "lobby", "general")
	require.NoError(t, err)
	member := testutil.UserID()
	_, err = f.svc.Join(ctx, member, room.ID)
	require.NoError(t, err)

	_, err = f.svc.PostMessage(ctx, member, room.ID, " \t\n ")
	require.ErrorIs(t, err, errs.ErrEmptyContent)

	_, err = f.svc.PostMessage(ctx, member, room.ID, strings.Repeat("a", maxMessageRunes+1))
	require.ErrorIs(t, err, errs.ErrContentTooLong)

	_, err = f.svc.PostMessage(ctx, testutil.UserID(), room.ID, "hello")
	require.ErrorIs(t, err, errs.ErrNotAMember)

	_, err = f.svc.PostMessage(ctx, member, testutil.UserID(), "hello")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)

	var n int64
	require.NoError(t, f.db.Model(&model.RoomMessageEntity{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, f.events.Events(realtime.EventMessageCreated))
}

func TestLeave(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	room, err := f.catalog.Resolve(ctx, model.RoomKindPrivate, "staff", "")
	require.NoError(t, err)
	user := testutil.UserID()
	_, err = f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Leave(ctx, user, room.ID))
	require.NoError(t, f.svc.Leave(ctx, user, room.ID))
	ok, err := f.svc.IsMember(ctx, user, room.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	left := f.events.Events(realtime.EventMemberLeft)
	require.Len(t, left, 1)
	assert.Equal(t, realtime.MemberPayload{UserID: user}, left[0].Payload)

	_, err = f.svc.History(ctx, user, room.ID, 0)
	require.ErrorIs(t, err, errs.ErrNotAMember)
}

func TestMalformedRoomIDNeverReachesStore(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	user := testutil.UserID()
	// A uuid column rejects "lobby" outright; such ids must be answered
	// before any query runs.
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	ok, err := f.svc.IsMember(ctx, user, "lobby")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
	assert.False(t, ok)

	_, err = f.svc.PostMessage(ctx, user, "lobby", "hello")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
	_, err = f.svc.History(ctx, user, "lobby", 0)
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
	_, err = f.svc.Join(ctx, user, "lobby")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
	require.NoError(t, f.svc.Leave(ctx, user, "lobby"))
	assert.Empty(t, f.events.Events(""))
}

func TestPublishFailureDoesNotFailPost(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	room, err := f.catalog.Resolve(ctx, model.RoomKindPublic, "lobby", "general")
	require.NoError(t, err)
	user := testutil.UserID()
	_, err = f.svc.Join(ctx, user, room.ID)
	require.NoError(t, err)

	f.events.Err = fmt.Errorf("valkey down")
	msg, err := f.svc.PostMessage(ctx, user, room.ID, "still stored")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
}
