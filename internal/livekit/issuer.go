// Package livekit mints short-lived capabilities for the external
// real-time media transport, using LiveKit's own access token builder.
package livekit

import (
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/psds-microservice/onair-service/internal/errs"
)

// TokenTTL is fixed; tokens are not renewable, callers re-mint.
const TokenTTL = 10 * time.Minute

// Config holds transport credentials and endpoints.
type Config struct {
	APIKey      string
	APISecret   string
	URL         string
	PlaybackURL string // may contain {room}
}

// Token is a minted capability plus where to use it.
type Token struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	RoomName  string    `json:"room_name"`
	Identity  string    `json:"identity"`
	Publish   bool      `json:"publish"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer mints room tokens and resolves playback URLs.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer creates an issuer. Missing credentials are reported when a
// token is requested, not here.
func NewIssuer(cfg Config) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the issuer using now as its time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Configured reports whether MintToken can succeed.
func (i *Issuer) Configured() bool {
	return i.cfg.APIKey != "" && i.cfg.APISecret != "" && i.cfg.URL != ""
}

// MintToken issues a token for identity in roomName. Subscribing is always
// allowed; publishing only when canPublish is set.
func (i *Issuer) MintToken(roomName, identity string, canPublish bool) (*Token, error) {
	if !i.Configured() {
		return nil, errs.ErrMisconfiguredTransport
	}
	roomName = strings.TrimSpace(roomName)
	identity = strings.TrimSpace(identity)
	if roomName == "" || identity == "" {
		return nil, fmt.Errorf("roomName and identity are required: %w", errs.ErrInvalidInput)
	}
	subscribe := true
	publish := canPublish
	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret).
		SetIdentity(identity).
		SetValidFor(TokenTTL).
		AddGrant(&auth.VideoGrant{
			RoomJoin:     true,
			Room:         roomName,
			CanPublish:   &publish,
			CanSubscribe: &subscribe,
		})
	signed, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("sign room token: %w", err)
	}
	return &Token{
		Token:     signed,
		URL:       i.cfg.URL,
		RoomName:  roomName,
		Identity:  identity,
		Publish:   canPublish,
		ExpiresAt: i.now().UTC().Add(TokenTTL),
	}, nil
}

// StartEgress returns the pre-provisioned playback URL for roomName. It is
// a lookup; no egress is started on the transport.
func (i *Issuer) StartEgress(roomName string) (string, error) {
	if i.cfg.PlaybackURL == "" {
		return "", errs.ErrEgressNotConfigured
	}
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return "", fmt.Errorf("roomName is required: %w", errs.ErrInvalidInput)
	}
	return strings.ReplaceAll(i.cfg.PlaybackURL, "{room}", roomName), nil
}
