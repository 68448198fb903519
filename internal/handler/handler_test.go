package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/onair-service/internal/handler"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/livekit"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"github.com/psds-microservice/onair-service/internal/router"
	"github.com/psds-microservice/onair-service/internal/service"
	"github.com/psds-microservice/onair-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type api struct {
	t      *testing.T
	db     *gorm.DB
	auth   *identity.JWTProvider
	clock  *testutil.Clock
	events *realtime.Recorder
	hub    *realtime.Hub
	srv    http.Handler
}

// tee publishes every event to each transport in turn.
type tee []realtime.Transport

func (t tee) Publish(ctx context.Context, ev realtime.Event) error {
	for _, tr := range t {
		if err := tr.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func newAPI(t *testing.T, lk livekit.Config) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	clock := testutil.NewClock()
	events := &realtime.Recorder{}
	hub := realtime.NewHub(1024, 1024, log)
	transport := tee{events, hub}
	opts := []service.Option{service.WithClock(clock.Now)}

	profiles := identity.NewProfileStore(db)
	catalog := service.NewRoomCatalog(db, profiles, log, opts...)
	members := service.NewMembershipService(db, catalog, profiles, transport, log, opts...)
	ledger := service.NewAirtimeLedger(db, log, opts...)
	issuer := livekit.NewIssuer(lk)
	live := service.NewLiveService(db, ledger, issuer, transport, "radio", log, opts...)
	auth := identity.NewJWTProvider("test-secret", "onair")

	srv := router.New(router.Handlers{
		Rooms:    handler.NewRoomHandler(catalog, members, "wss://onair.example", log),
		Messages: handler.NewMessageHandler(members, log),
		Airtime:  handler.NewAirtimeHandler(ledger, log),
		LiveKit:  handler.NewLiveKitHandler(issuer, log),
		Live:     handler.NewLiveHandler(live, "wss://onair.example", log),
		Profile:  handler.NewProfileHandler(profiles, ledger, log),
		Realtime: handler.NewRealtimeWSHandler(hub, members, 65536, log),
		Health:   handler.NewHealthHandler(nil),
	}, handler.RequireUser(auth), nil)

	return &api{t: t, db: db, auth: auth, clock: clock, events: events, hub: hub, srv: srv}
}

func (a *api) token(userID string) string {
	a.t.Helper()
	tok, err := a.auth.Issue(userID, time.Hour)
	require.NoError(a.t, err)
	return tok
}

// do sends a request as userID; an empty userID sends no credentials.
func (a *api) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(userID))
	}
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) verify(userID string, year int) {
	a.t.Helper()
	w := a.do(http.MethodPut, "/profile/verification", userID, model.VerificationRequest{GraduationYear: year, School: "Westfield High"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/ready", "", nil).Code)
}

func TestPostMessageUnauthenticated(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	w := a.do(http.MethodPost, "/messages", "", model.PostMessageRequest{RoomID: testutil.UserID(), Content: "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var n int64
	require.NoError(t, a.db.Model(&model.RoomMessageEntity{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGetRoomYearWithoutGraduationYear(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	w := a.do(http.MethodGet, "/room?type=year", testutil.UserID(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/room?type=cousins", testutil.UserID(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRoomRequiresVerification(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	user := testutil.UserID()

	w := a.do(http.MethodGet, "/room?type=alumni", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	a.verify(user, 2010)
	w = a.do(http.MethodGet, "/room?type=year", user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[model.RoomResponse](t, w)
	assert.Equal(t, "alumni-class-of-2010", resp.Room.Name)
	assert.Equal(t, "wss://onair.example/ws/rooms/"+resp.Room.ID, resp.WSURL)
	assert.Empty(t, resp.Messages)
}

func TestAlumniRoomConversation(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	alice, bob := testutil.UserID(), testutil.UserID()
	a.verify(alice, 2010)
	a.verify(bob, 2010)

	room := decode[model.RoomResponse](t, a.do(http.MethodGet, "/room?type=year", alice, nil)).Room

	w := a.do(http.MethodPost, "/messages", bob, model.PostMessageRequest{RoomID: room.ID, Content: "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code, "bob has not joined yet")

	w = a.do(http.MethodPost, "/messages", alice, model.PostMessageRequest{RoomID: room.ID, Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/messages", alice, model.PostMessageRequest{RoomID: room.ID, Content: " first "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "first", decode[model.Message](t, w).Content)

	joined := decode[model.RoomResponse](t, a.do(http.MethodGet, "/room?type=year", bob, nil))
	assert.Equal(t, room.ID, joined.Room.ID)
	require.Len(t, joined.Messages, 1)
	assert.Equal(t, "first", joined.Messages[0].Content)

	w = a.do(http.MethodPost, "/messages", bob, model.PostMessageRequest{RoomID: room.ID, Content: "second"})
	require.Equal(t, http.StatusCreated, w.Code)

	history := decode[struct {
		Messages []model.Message `json:"messages"`
	}](t, a.do(http.MethodGet, "/rooms/"+room.ID+"/messages", alice, nil))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "second", history.Messages[1].Content)

	w = a.do(http.MethodPost, "/messages", alice, model.PostMessageRequest{RoomID: testutil.UserID(), Content: "lost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicRooms(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	user := testutil.UserID()

	w := a.do(http.MethodPost, "/rooms", user, model.CreateRoomRequest{Kind: model.RoomKindPublic, Key: "lobby", Category: "general"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[struct {
		Room model.Room `json:"room"`
	}](t, w).Room

	w = a.do(http.MethodPost, "/rooms", user, model.CreateRoomRequest{Kind: model.RoomKindAlumni, Key: "2010"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	list := decode[struct {
		Rooms []model.Room `json:"rooms"`
	}](t, a.do(http.MethodGet, "/rooms", user, nil))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, created.ID, list.Rooms[0].ID)

	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/rooms/"+created.ID+"/join", user, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/rooms/"+created.ID+"/leave", user, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/rooms/"+created.ID+"/messages", user, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/rooms/"+testutil.UserID()+"/join", user, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/rooms/"+created.ID+"/messages?limit=-1", user, nil).Code)
}

func TestAdminAirtime(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	user := testutil.UserID()

	w := a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "start", Source: model.LiveSourceAudio})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	logID := decode[map[string]string](t, w)["logId"]
	require.NotEmpty(t, logID)

	a.clock.Advance(42 * time.Second)
	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "stop", LogID: logID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry := decode[model.AirtimeEntry](t, w)
	require.NotNil(t, entry.DurationSec)
	assert.EqualValues(t, 42, *entry.DurationSec)

	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "stop", LogID: logID})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "stop", LogID: testutil.UserID()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "stop"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "pause"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(http.MethodPost, "/admin/airtime", user, model.AirtimeRequest{Action: "start", Source: "screen"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	list := decode[struct {
		Entries []model.AirtimeEntry `json:"entries"`
	}](t, a.do(http.MethodGet, "/admin/airtime?limit=10", user, nil))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, logID, list.Entries[0].ID)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/admin/airtime?limit=abc", user, nil).Code)

	total := decode[map[string]any](t, a.do(http.MethodGet, "/profile/airtime", user, nil))
	assert.EqualValues(t, 42, total["total_sec"])
}

func TestLiveKitMisconfigured(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	w := a.do(http.MethodPost, "/livekit-token", "", model.TokenRequest{RoomName: "radio", Identity: "dj"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "feature unavailable", body["error"])
	assert.NotContains(t, body, "token")

	w = a.do(http.MethodPost, "/livekit-egress/start", "", model.EgressRequest{RoomName: "radio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveKitToken(t *testing.T) {
	a := newAPI(t, livekit.Config{
		APIKey:      "key",
		APISecret:   "secret",
		URL:         "wss://lk.example",
		PlaybackURL: "https://cdn.example/{room}/index.m3u8",
	})
	w := a.do(http.MethodPost, "/livekit-token", "", model.TokenRequest{RoomName: "radio", Identity: "listener-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok := decode[livekit.Token](t, w)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, "wss://lk.example", tok.URL)
	assert.False(t, tok.Publish)

	w = a.do(http.MethodPost, "/livekit-token", "", model.TokenRequest{RoomName: "radio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/livekit-egress/start", "", model.EgressRequest{RoomName: "radio"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cdn.example/radio/index.m3u8", decode[map[string]string](t, w)["playbackUrl"])
}

func TestLiveStartStop(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	dj, other := testutil.UserID(), testutil.UserID()

	w := a.do(http.MethodPost, "/live/start", dj, model.StartLiveRequest{Source: model.LiveSourceAudio})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[service.StartResult](t, w)
	require.NotNil(t, started.Session)
	assert.Equal(t, "wss://onair.example/ws/live", started.WSURL)

	w = a.do(http.MethodPost, "/live/start", dj, model.StartLiveRequest{Source: model.LiveSourceAudio})
	require.Equal(t, http.StatusOK, w.Code, "retried start returns the existing session")
	assert.Equal(t, started.Session.ID, decode[service.StartResult](t, w).Session.ID)

	current := decode[map[string]any](t, a.do(http.MethodGet, "/live/current", dj, nil))
	assert.Equal(t, "live", current["state"])
	assert.Equal(t, "wss://onair.example/ws/live", current["ws_url"])

	stopPath := "/live/" + started.Session.ID + "/stop"
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, stopPath, other, nil).Code)

	a.clock.Advance(65 * time.Second)
	w = a.do(http.MethodPost, stopPath, dj, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stopped := decode[model.LiveSession](t, w)
	assert.EqualValues(t, 65, stopped.DurationSec)

	w = a.do(http.MethodPost, stopPath, dj, nil)
	require.Equal(t, http.StatusOK, w.Code, "duplicate stop is absorbed")
	assert.EqualValues(t, 65, decode[model.LiveSession](t, w).DurationSec)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/live/"+testutil.UserID()+"/stop", dj, nil).Code)
	current = decode[map[string]any](t, a.do(http.MethodGet, "/live/current", dj, nil))
	assert.Equal(t, "idle", current["state"])

	assert.Len(t, a.events.Events(realtime.EventLiveStopped), 1)
}

func TestWebSocketRequiresMembership(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	user := testutil.UserID()
	w := a.do(http.MethodPost, "/rooms", user, model.CreateRoomRequest{Kind: model.RoomKindPublic, Key: "lobby"})
	require.Equal(t, http.StatusOK, w.Code)
	room := decode[struct {
		Room model.Room `json:"room"`
	}](t, w).Room

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/ws/rooms/"+room.ID, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/ws/rooms/"+room.ID, user, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/ws/rooms/"+testutil.UserID(), user, nil).Code)
}

func TestMalformedRoomID(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	user := testutil.UserID()

	w := a.do(http.MethodPost, "/messages", user, model.PostMessageRequest{RoomID: "lobby", Content: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/rooms/lobby/leave", user, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/rooms/lobby/messages", user, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/ws/rooms/lobby", user, nil).Code)
}

func (a *api) dial(srv *httptest.Server, path, userID string) *websocket.Conn {
	a.t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?access_token=" + a.token(userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(a.t, err)
	_ = resp.Body.Close()
	a.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestLeaveEndsRoomSubscription(t *testing.T) {
	a := newAPI(t, livekit.Config{})
	srv := httptest.NewServer(a.srv)
	defer srv.Close()
	alice, bob := testutil.UserID(), testutil.UserID()

	w := a.do(http.MethodPost, "/rooms", alice, model.CreateRoomRequest{Kind: model.RoomKindPublic, Key: "lobby", Category: "general"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room := decode[struct {
		Room model.Room `json:"room"`
	}](t, w).Room
	for _, u := range []string{alice, bob} {
		require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/rooms/"+room.ID+"/join", u, nil).Code)
	}

	conn := a.dial(srv, "/ws/rooms/"+room.ID, alice)
	require.Eventually(t, func() bool { return a.hub.PeerCount(room.ID) == 1 }, time.Second, 10*time.Millisecond)

	post := func(content string) {
		w := a.do(http.MethodPost, "/messages", bob, model.PostMessageRequest{RoomID: room.ID, Content: content})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	post("before alice left")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "before alice left")

	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/rooms/"+room.ID+"/leave", alice, nil).Code)
	require.Eventually(t, func() bool { return a.hub.PeerCount(room.ID) == 0 }, time.Second, 10*time.Millisecond)
	post("after alice left")

	// The socket yields the member.left notice, then the close frame.
	var frames []string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frames = append(frames, string(raw))
	}
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], realtime.EventMemberLeft)
	for _, f := range frames {
		assert.NotContains(t, f, "after alice left")
	}

	w = a.do(http.MethodGet, "/ws/rooms/"+room.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "a former member cannot resubscribe")
}
