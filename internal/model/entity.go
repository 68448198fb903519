package model

import "time"

// UserEntity — профиль пользователя, нужный для alumni-гейтинга (GORM).
// Credentials live in the external identity provider; only the id is shared.
type UserEntity struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	DisplayName    string  `gorm:"size:100"`
	GraduationYear *int    `gorm:"column:graduation_year"`
	School         *string `gorm:"size:200"`
	IsVerified     bool    `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (UserEntity) TableName() string { return "users" }

// RoomEntity — комната чата (GORM). Name is unique so find-or-create is race free.
type RoomEntity struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:120;not null;uniqueIndex"`
	Kind      string    `gorm:"size:20;not null;index"`
	Category  string    `gorm:"size:60;not null"`
	CreatedBy *string   `gorm:"type:uuid"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RoomEntity) TableName() string { return "rooms" }

// RoomMemberEntity — участник комнаты (GORM).
type RoomMemberEntity struct {
	RoomID   string    `gorm:"type:uuid;primaryKey"`
	UserID   string    `gorm:"type:uuid;primaryKey;index"`
	JoinedAt time.Time `gorm:"not null"`
}

func (RoomMemberEntity) TableName() string { return "room_members" }

// RoomMessageEntity — сообщение в комнате (GORM). ID is the per-store
// sequence that orders messages inside a room.
type RoomMessageEntity struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID    string    `gorm:"type:uuid;not null;index"`
	UserID    string    `gorm:"type:uuid;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RoomMessageEntity) TableName() string { return "room_messages" }

// LiveSessionEntity — эфирная сессия (GORM). At most one row per
// (user_id, source) may have state 'live'.
type LiveSessionEntity struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	UserID       string     `gorm:"type:uuid;not null;index;uniqueIndex:idx_live_sessions_one_live,where:state = 'live'"`
	Source       string     `gorm:"size:10;not null;uniqueIndex:idx_live_sessions_one_live"`
	State        string     `gorm:"size:10;not null"`
	AirtimeLogID string     `gorm:"type:uuid;not null;index"`
	StartedAt    time.Time  `gorm:"not null"`
	EndedAt      *time.Time `gorm:"column:ended_at"`
	DurationSec  int64      `gorm:"not null;default:0"`
}

func (LiveSessionEntity) TableName() string { return "live_sessions" }

// AirtimeLogEntity — запись журнала эфирного времени (GORM).
type AirtimeLogEntity struct {
	ID          string     `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"type:uuid;not null;index"`
	Source      string     `gorm:"size:10;not null"`
	StartedAt   time.Time  `gorm:"not null;index"`
	EndedAt     *time.Time `gorm:"column:ended_at"`
	DurationSec *int64     `gorm:"column:duration_sec"`
}

func (AirtimeLogEntity) TableName() string { return "airtime_logs" }

// MigrateModels lists the entities created by AutoMigrate (sqlite driver).
var MigrateModels = []any{
	&UserEntity{},
	&RoomEntity{},
	&RoomMemberEntity{},
	&RoomMessageEntity{},
	&LiveSessionEntity{},
	&AirtimeLogEntity{},
}
