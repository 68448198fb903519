package service

import (
	"fmt"
	"strings"
)

// WSConfig holds WebSocket URL base for responses.
type WSConfig struct {
	BaseURL string
}

// RoomURL returns the WebSocket URL of a room (e.g. wss://host/ws/rooms/roomID).
func (c *WSConfig) RoomURL(roomID string) string {
	return c.join(fmt.Sprintf("/ws/rooms/%s", roomID))
}

// LiveURL returns the WebSocket URL of the on-air status channel.
func (c *WSConfig) LiveURL() string {
	return c.join("/ws/live")
}

func (c *WSConfig) join(path string) string {
	if c == nil || c.BaseURL == "" {
		return path
	}
	return strings.TrimRight(c.BaseURL, "/") + path
}
