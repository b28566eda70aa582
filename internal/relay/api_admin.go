package relay

import (
	"errors"
	"log/slog"
	"net/netip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/domain"
)

// isAdminIP checks the caller against the configured admin networks.
func (s *Server) isAdminIP(addrPort string) bool {
	ip, err := netip.ParseAddrPort(addrPort)
	if err != nil {
		slog.Error("failed to parse IP address", "addr", addrPort, "error", err)
		return false
	}

	for _, n := range s.cfg.Get().Security.AdminNetworks {
		if n.Contains(ip.Addr()) {
			return true
		}
	}
	return false
}

func (s *Server) setupAdminApi() {
	s.app.Route("/api/admin", func(router fiber.Router) {
		router.Use(func(c *fiber.Ctx) error {
			if !s.isAdminIP(c.Context().RemoteAddr().String()) {
				return c.Status(fiber.StatusForbidden).SendString("Forbidden")
			}
			return c.Next()
		})

		router.Use(basicauth.New(basicauth.Config{
			Realm: "Forbidden",
			Authorizer: func(user, pass string) bool {
				credential := s.cfg.Get().Security.AdminCredential
				return credential == nil || user == "admin" && pass == *credential
			},
		}))

		router.Post("/rooms/:roomID/kick/:participantID", func(c *fiber.Ctx) error {
			var req kickRequest
			if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
				return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
			}
			if req.Reason == "" {
				req.Reason = "removed by host"
			}

			err := s.bridge.ForceDisconnect(c.Params("roomID"), c.Params("participantID"), req.Reason)
			if errors.Is(err, domain.ErrRoomNotFound) || errors.Is(err, domain.ErrParticipantNotFound) {
				return c.Status(fiber.StatusNotFound).SendString("Participant not found")
			}
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).SendString("Failed to disconnect participant")
			}
			return c.Status(fiber.StatusOK).SendString("Ok")
		})

		router.Post("/rooms/:roomID/broadcast", func(c *fiber.Ctx) error {
			var env api.Envelope
			if err := c.BodyParser(&env); err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
			}
			if err := env.Validate(); err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
			}

			s.bridge.Broadcast(c.Params("roomID"), "", env)
			return c.Status(fiber.StatusOK).SendString("Ok")
		})

		router.Get("/rooms/:roomID/features", func(c *fiber.Ctx) error {
			return c.JSON(s.bridge.Features(c.Params("roomID")))
		})

		router.Get("/rooms/:roomID/members", func(c *fiber.Ctx) error {
			members, err := s.rooms.Members(c.Params("roomID"))
			if errors.Is(err, domain.ErrRoomNotFound) {
				return c.Status(fiber.StatusNotFound).SendString("Room not found")
			}
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).SendString("Failed to list members")
			}
			return c.JSON(api.ToUsers(members))
		})
	})
}

type kickRequest struct {
	Reason string `json:"reason"`
}
