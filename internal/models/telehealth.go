package models

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionWaiting   SessionStatus = "waiting"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

type ParticipantRole string

const (
	RoleTherapist ParticipantRole = "therapist"
	RolePatient   ParticipantRole = "patient"
)

type ParticipantStatus string

const (
	ParticipantConnecting   ParticipantStatus = "connecting"
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

type ConnectionQuality string

const (
	QualityPoor      ConnectionQuality = "poor"
	QualityFair      ConnectionQuality = "fair"
	QualityGood      ConnectionQuality = "good"
	QualityExcellent ConnectionQuality = "excellent"
)

type RecordingStatus string

const (
	RecordingInProgress RecordingStatus = "recording"
	RecordingProcessing RecordingStatus = "processing"
	RecordingCompleted  RecordingStatus = "completed"
	RecordingFailed     RecordingStatus = "failed"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

type MediaStatus struct {
	Audio       bool `json:"audio"`
	Video       bool `json:"video"`
	ScreenShare bool `json:"screen_share"`
}

type ConnectionStats struct {
	BitrateKbps int               `json:"bitrate_kbps"`
	PacketsLost int               `json:"packets_lost"`
	LatencyMS   int               `json:"latency_ms"`
	FrameWidth  int               `json:"frame_width,omitempty"`
	FrameHeight int               `json:"frame_height,omitempty"`
	FrameRate   float64           `json:"frame_rate,omitempty"`
	AudioLevel  float64           `json:"audio_level,omitempty"`
	Quality     ConnectionQuality `json:"quality"`
}

type Participant struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Role        ParticipantRole   `json:"role"`
	Status      ParticipantStatus `json:"status"`
	Media       MediaStatus       `json:"media"`
	Stats       ConnectionStats   `json:"stats"`
	JoinedAt    time.Time         `json:"joined_at"`
	LeftAt      *time.Time        `json:"left_at,omitempty"`
}

type ConsentRecord struct {
	PatientConsent   bool      `json:"patient_consent"`
	ConsentTimestamp time.Time `json:"consent_timestamp"`
	ConsentMethod    string    `json:"consent_method"`
}

type Recording struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DurationSeconds int             `json:"duration_seconds"`
	FileURL         *string         `json:"file_url,omitempty"`
	FileSize        int64           `json:"file_size"`
	Status          RecordingStatus `json:"status"`
	Consent         ConsentRecord   `json:"consent"`
}

type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type SessionMessage struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageType `json:"type"`
	File       *FileMeta   `json:"file,omitempty"`
}

type TeleSession struct {
	ID             string            `json:"id"`
	PatientID      string            `json:"patient_id"`
	TherapistID    string            `json:"therapist_id"`
	ScheduledStart time.Time         `json:"scheduled_start"`
	ActualStart    *time.Time        `json:"actual_start,omitempty"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Status         SessionStatus     `json:"status"`
	Participants   []*Participant    `json:"participants"`
	Recording      *Recording        `json:"recording,omitempty"`
	Messages       []SessionMessage  `json:"messages"`
	Quality        ConnectionQuality `json:"connection_quality"`
	SessionType    string            `json:"session_type"`
	AppointmentID  *string           `json:"appointment_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
