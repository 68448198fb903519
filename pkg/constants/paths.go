package constants

// Пути health, ready, metrics и WebSocket.
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathMetrics = "/metrics"

	PathWSRoom = "/ws/rooms/:id"
	PathWSLive = "/ws/live"
)
