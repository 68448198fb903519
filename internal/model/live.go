package model

import "time"

// LiveSource is the kind of media a broadcast carries.
type LiveSource string

const (
	LiveSourceAudio LiveSource = "audio"
	LiveSourceVideo LiveSource = "video"
)

// Valid reports whether s is audio or video.
func (s LiveSource) Valid() bool {
	return s == LiveSourceAudio || s == LiveSourceVideo
}

// LiveState represents on-air session state. Idle is never stored: it
// means no session row exists.
type LiveState string

const (
	LiveStateIdle    LiveState = "idle"
	LiveStateLive    LiveState = "live"
	LiveStateStopped LiveState = "stopped"
)

// LiveSession is the API view of an on-air session.
type LiveSession struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Source       LiveSource `json:"source"`
	State        LiveState  `json:"state"`
	AirtimeLogID string     `json:"airtime_log_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationSec  int64      `json:"duration_sec"`
}

// AirtimeEntry is the API view of an airtime ledger row.
type AirtimeEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Source      LiveSource `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationSec *int64     `json:"duration_sec,omitempty"`
}

// AirtimeRequest is the request body for POST /admin/airtime.
type AirtimeRequest struct {
	Action string     `json:"action"`
	Source LiveSource `json:"source"`
	LogID  string     `json:"logId"`
}

// StartLiveRequest is the request body for POST /live/start.
type StartLiveRequest struct {
	Source LiveSource `json:"source"`
}

// TokenRequest is the request body for POST /livekit-token.
type TokenRequest struct {
	RoomName string `json:"roomName"`
	Identity string `json:"identity"`
	Publish  bool   `json:"publish"`
}

// EgressRequest is the request body for POST /livekit-egress/start.
type EgressRequest struct {
	RoomName string `json:"roomName"`
}
