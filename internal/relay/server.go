package relay

import (
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/repository/memory"
	"github.com/huddlekit/huddle/internal/service"
)

// Server is the signaling relay: it accepts one WebSocket stream per
// participant, keyed by room id, and routes typed control messages between
// members of the same room. Media-negotiation payloads pass through opaque;
// membership and media-state messages are interpreted to keep room state.
type Server struct {
	app      *fiber.App
	cfg      *config.Manager
	registry *memory.RoomRegistry
	rooms    *service.RoomService
	bridge   *AdminBridge

	// admitMu makes registry membership and bridge registration move as
	// one step, so a member another joiner's snapshot can see is always
	// reachable for the join broadcast.
	admitMu sync.Mutex
}

func NewServer(cfg *config.Manager, app *fiber.App) *Server {
	registry := memory.NewRoomRegistry(cfg.Get().Rooms.EmptyGracePeriod())

	return &Server{
		app:      app,
		cfg:      cfg,
		registry: registry,
		rooms:    service.NewRoomService(registry),
		bridge:   NewAdminBridge(),
	}
}

// Bridge exposes the admin bridge to external collaborators (the document
// store's host controls, tests).
func (s *Server) Bridge() *AdminBridge {
	return s.bridge
}

// SetupRoutes configures the WebSocket endpoint, the admin API and the
// metrics endpoint. Call once before listening.
func (s *Server) SetupRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/rooms/:roomID", websocket.New(func(c *websocket.Conn) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in room socket handler", "error", err)
			}
		}()

		roomID := c.Params("roomID")
		if roomID == "" {
			return
		}
		s.handleRoomSocket(c, roomID)
	}))

	s.setupAdminApi()

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (s *Server) Close() {
	s.bridge.Close()
	s.registry.Close()
}
