package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/onair-service/internal/handler"
	"github.com/psds-microservice/onair-service/pkg/constants"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Rooms    *handler.RoomHandler
	Messages *handler.MessageHandler
	Airtime  *handler.AirtimeHandler
	LiveKit  *handler.LiveKitHandler
	Live     *handler.LiveHandler
	Profile  *handler.ProfileHandler
	Realtime *handler.RealtimeWSHandler
	Health   *handler.HealthHandler
}

// New builds the HTTP router. auth guards every user-facing route; metrics
// may be nil.
func New(h Handlers, auth gin.HandlerFunc, metrics prometheus.Gatherer) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, h.Health.Health)
	r.GET(constants.PathReady, h.Health.Ready)
	if metrics != nil {
		r.GET(constants.PathMetrics, gin.WrapH(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))
	}

	// LiveKit: identity comes from the body, no caller auth
	r.POST("/livekit-token", h.LiveKit.Token)
	r.POST("/livekit-egress/start", h.LiveKit.StartEgress)

	api := r.Group("", auth)
	{
		api.GET("/room", h.Rooms.GetRoom)
		api.POST("/messages", h.Messages.PostMessage)

		api.POST("/admin/airtime", h.Airtime.Record)
		api.GET("/admin/airtime", h.Airtime.List)

		api.GET("/rooms", h.Rooms.ListRooms)
		api.POST("/rooms", h.Rooms.CreateRoom)
		api.POST("/rooms/:id/join", h.Rooms.JoinRoom)
		api.POST("/rooms/:id/leave", h.Rooms.LeaveRoom)
		api.GET("/rooms/:id/messages", h.Rooms.RoomMessages)

		api.POST("/live/start", h.Live.Start)
		api.POST("/live/:id/stop", h.Live.Stop)
		api.GET("/live/current", h.Live.Current)

		api.PUT("/profile/verification", h.Profile.Verify)
		api.GET("/profile/airtime", h.Profile.Airtime)

		// WebSocket: token via ?access_token= since browsers cannot set headers
		api.GET(constants.PathWSRoom, h.Realtime.ServeRoom)
		api.GET(constants.PathWSLive, h.Realtime.ServeLive)
	}

	return r
}
