package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

type sessionEngine interface {
	CreateSession(
		ctx context.Context,
		patientID, therapistID string,
		scheduledStart time.Time,
		sessionType string,
		appointmentID *string,
	) (*models.TeleSession, error)
	JoinSession(ctx context.Context, sessionID, userID string, role models.ParticipantRole) bool
	LeaveSession(ctx context.Context, sessionID, userID string) bool
	EndSession(ctx context.Context, sessionID string) bool
	CancelSession(ctx context.Context, sessionID, actorID string) bool
	StartRecording(ctx context.Context, sessionID string, consent models.ConsentRecord) string
	StopRecording(ctx context.Context, sessionID string) bool
	StartScreenShare(ctx context.Context, sessionID, userID string) bool
	StopScreenShare(ctx context.Context, sessionID string) bool
	SendChatMessage(ctx context.Context, sessionID, senderID, text string) bool
	ToggleAudio(sessionID, userID string) bool
	ToggleVideo(sessionID, userID string) bool
	GetSession(sessionID string) (*models.TeleSession, bool)
	History(ctx context.Context, userID string, limit int) ([]models.TeleSession, error)
	ActiveSessionIDs(ctx context.Context) ([]string, error)
}

type TelehealthHandler struct {
	engine sessionEngine
}

func NewTelehealthHandler(engine sessionEngine) *TelehealthHandler {
	return &TelehealthHandler{engine: engine}
}

type createSessionRequest struct {
	PatientID      string  `json:"patient_id"`
	TherapistID    string  `json:"therapist_id"`
	ScheduledStart string  `json:"scheduled_start"`
	SessionType    string  `json:"session_type"`
	AppointmentID  *string `json:"appointment_id"`
}

func (h *TelehealthHandler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledStart := time.Now().UTC()
	if req.ScheduledStart != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledStart)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "Invalid scheduled_start, expected RFC3339"})
		}
		scheduledStart = parsed
	}
	if req.SessionType == "" {
		req.SessionType = "video"
	}

	session, err := h.engine.CreateSession(
		c.Context(),
		req.PatientID,
		req.TherapistID,
		scheduledStart,
		req.SessionType,
		req.AppointmentID,
	)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Invalid patient or therapist"})
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

type joinSessionRequest struct {
	Role string `json:"role"`
}

func (h *TelehealthHandler) JoinSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req joinSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	role := models.ParticipantRole(req.Role)
	if role != models.RoleTherapist && role != models.RolePatient {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid role"})
	}

	if !h.engine.JoinSession(c.Context(), c.Params("id"), userID, role) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Unable to join session"})
	}
	session, _ := h.engine.GetSession(c.Params("id"))
	return c.JSON(session)
}

func (h *TelehealthHandler) LeaveSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !h.engine.LeaveSession(c.Context(), c.Params("id"), userID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Unable to leave session"})
	}
	return c.JSON(fiber.Map{"status": "left"})
}

func (h *TelehealthHandler) EndSession(c *fiber.Ctx) error {
	if !h.engine.EndSession(c.Context(), c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(fiber.Map{"status": "ended"})
}

func (h *TelehealthHandler) CancelSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !h.engine.CancelSession(c.Context(), c.Params("id"), userID) {
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Session cannot be cancelled"})
	}
	return c.JSON(fiber.Map{"status": "cancelled"})
}

type startRecordingRequest struct {
	PatientConsent bool   `json:"patient_consent"`
	ConsentMethod  string `json:"consent_method"`
}

func (h *TelehealthHandler) StartRecording(c *fiber.Ctx) error {
	var req startRecordingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ConsentMethod == "" {
		req.ConsentMethod = "verbal"
	}

	consent := models.ConsentRecord{
		PatientConsent:   req.PatientConsent,
		ConsentTimestamp: time.Now().UTC(),
		ConsentMethod:    req.ConsentMethod,
	}
	recordingID := h.engine.StartRecording(c.Context(), c.Params("id"), consent)
	if recordingID == "" {
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Unable to start recording"})
	}
	return c.JSON(fiber.Map{"recording_id": recordingID})
}

func (h *TelehealthHandler) StopRecording(c *fiber.Ctx) error {
	if !h.engine.StopRecording(c.Context(), c.Params("id")) {
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "No recording in progress"})
	}
	return c.JSON(fiber.Map{"status": "stopping"})
}

func (h *TelehealthHandler) StartScreenShare(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !h.engine.StartScreenShare(c.Context(), c.Params("id"), userID) {
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Unable to start screen share"})
	}
	return c.JSON(fiber.Map{"status": "sharing"})
}

func (h *TelehealthHandler) StopScreenShare(c *fiber.Ctx) error {
	if !h.engine.StopScreenShare(c.Context(), c.Params("id")) {
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "No screen share in progress"})
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *TelehealthHandler) SendChatMessage(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is required"})
	}

	if !h.engine.SendChatMessage(c.Context(), c.Params("id"), userID, req.Message) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Unable to send message"})
	}
	return c.JSON(fiber.Map{"status": "sent"})
}

func (h *TelehealthHandler) ToggleAudio(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !h.engine.ToggleAudio(c.Params("id"), userID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Unable to toggle audio"})
	}
	return c.JSON(fiber.Map{"status": "toggled"})
}

func (h *TelehealthHandler) ToggleVideo(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !h.engine.ToggleVideo(c.Params("id"), userID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Unable to toggle video"})
	}
	return c.JSON(fiber.Map{"status": "toggled"})
}

func (h *TelehealthHandler) GetSession(c *fiber.Ctx) error {
	session, ok := h.engine.GetSession(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(session)
}

func (h *TelehealthHandler) History(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	sessions, err := h.engine.History(c.Context(), userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to fetch history"})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *TelehealthHandler) ActiveSessions(c *fiber.Ctx) error {
	ids, err := h.engine.ActiveSessionIDs(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to fetch active sessions"})
	}
	return c.JSON(fiber.Map{"session_ids": ids})
}

func currentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	return userID, ok && userID != ""
}
