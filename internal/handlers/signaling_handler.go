package handlers

import (
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
	signalws "github.com/saeid-a/TeleClinicBack/internal/websocket"
	"github.com/saeid-a/TeleClinicBack/pkg/utils"
)

type SignalingHandler struct {
	hub       *signalws.Hub
	peers     *telehealth.PeerManager
	jwtSecret string
}

func NewSignalingHandler(hub *signalws.Hub, peers *telehealth.PeerManager, jwtSecret string) *SignalingHandler {
	return &SignalingHandler{
		hub:       hub,
		peers:     peers,
		jwtSecret: jwtSecret,
	}
}

func (h *SignalingHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	c.Locals("session_id", c.Params("id"))
	return c.Next()
}

func (h *SignalingHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	sessionID, _ := conn.Locals("session_id").(string)
	client := signalws.NewClient(h.hub, conn, sessionID, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.peers)
}

func (h *SignalingHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}
	return utils.ValidateToken(tokenString, h.jwtSecret)
}
