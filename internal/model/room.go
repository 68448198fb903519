package model

import "time"

// RoomKind is the access class of a room.
type RoomKind string

const (
	RoomKindPublic  RoomKind = "public"
	RoomKindPrivate RoomKind = "private"
	RoomKindAlumni  RoomKind = "alumni"
)

// Valid reports whether k is one of the known kinds.
func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindPublic, RoomKindPrivate, RoomKindAlumni:
		return true
	}
	return false
}

// Room is the API view of a chat room (not GORM entity).
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      RoomKind  `json:"kind"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a chat message in a room — API response DTO.
type Message struct {
	ID        uint64    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership is the result of a join: the room, when the user joined and
// the most recent messages ordered oldest first.
type Membership struct {
	Room     Room      `json:"room"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	Messages []Message `json:"messages"`
}

// Profile is the identity-side view used for alumni gating.
type Profile struct {
	UserID         string  `json:"user_id"`
	GraduationYear *int    `json:"graduation_year,omitempty"`
	School         *string `json:"school,omitempty"`
	IsVerified     bool    `json:"is_verified"`
}

// AlumniVerified reports whether the profile passes alumni gating.
func (p Profile) AlumniVerified() bool {
	return p.GraduationYear != nil && p.School != nil && *p.School != "" && p.IsVerified
}

// RoomResponse is the response for GET /room.
type RoomResponse struct {
	Room     Room      `json:"room"`
	Messages []Message `json:"messages"`
	WSURL    string    `json:"ws_url"`
}

// CreateRoomRequest is the request body for POST /rooms.
type CreateRoomRequest struct {
	Kind     RoomKind `json:"kind" binding:"required"`
	Key      string   `json:"key" binding:"required"`
	Category string   `json:"category"`
}

// PostMessageRequest is the request body for POST /messages.
type PostMessageRequest struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// VerificationRequest is the request body for PUT /profile/verification.
type VerificationRequest struct {
	GraduationYear int    `json:"graduationYear"`
	School         string `json:"school"`
}
