package types

// Inbound message types, discriminated by the "type" field of each text frame.
const (
	MessageTypeRegister      = "register"
	MessageTypeTranscription = "transcription"
	MessageTypeAudio         = "audio"
	MessageTypeTTSRequest    = "tts_request"
	MessageTypeSettings      = "settings"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Outbound message types.
const (
	MessageTypeConnection     = "connection"
	MessageTypeClassroomCode  = "classroom_code"
	MessageTypeTranslation    = "translation"
	MessageTypeTTSResponse    = "tts_response"
	MessageTypeStudentJoined  = "student_joined"
	MessageTypeSessionExpired = "session_expired"
	MessageTypeError          = "error"
)

// Stable error codes surfaced to clients in error frames.
const (
	ErrCodeInvalidClassroom = "INVALID_CLASSROOM"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeTTSFailed        = "TTS_FAILED"
)

// CloseInvalidClassroom is the WebSocket close code for unknown or expired
// classroom codes (policy violation, RFC 6455).
const CloseInvalidClassroom = 1008

// CloseReasonInvalidClassroom is the close reason paired with
// CloseInvalidClassroom.
const CloseReasonInvalidClassroom = "Invalid classroom session"

// ClosePolicyViolation is the general RFC 6455 policy-violation close code,
// used when teacher authentication fails.
const ClosePolicyViolation = 1008

// CloseReasonAuthFailed is the close reason paired with ClosePolicyViolation
// on authentication failures.
const CloseReasonAuthFailed = "Authentication failed"

// Envelope is the tagged union every inbound text frame decodes into. Only
// the fields relevant to the declared Type are consulted; the rest stay at
// their zero values.
type Envelope struct {
	Type string `json:"type"`

	// register
	Role          string   `json:"role,omitempty"`
	LanguageCode  string   `json:"languageCode,omitempty"`
	Name          string   `json:"name,omitempty"`
	Settings      Settings `json:"settings,omitempty"`
	ClassroomCode string   `json:"classroomCode,omitempty"`
	TeacherID     string   `json:"teacherId,omitempty"`
	AuthToken     string   `json:"authToken,omitempty"`

	// transcription / tts_request
	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`

	// audio
	Data string `json:"data,omitempty"`

	// settings (legacy top-level field, merged into Settings)
	TTSServiceType string `json:"ttsServiceType,omitempty"`

	// ping
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ConnectionAck is sent once immediately after a connection is accepted.
type ConnectionAck struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	SessionID     string `json:"sessionId"`
	ClassroomCode string `json:"classroomCode,omitempty"`
}

// ClassroomCodeFrame delivers the shareable join code to a teacher.
type ClassroomCodeFrame struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// RegisterAck confirms a successful register.
type RegisterAck struct {
	Type   string       `json:"type"`
	Status string       `json:"status"`
	Data   RegisterData `json:"data"`
}

// RegisterData echoes the registered peer state.
type RegisterData struct {
	Role         string   `json:"role"`
	LanguageCode string   `json:"languageCode"`
	Settings     Settings `json:"settings,omitempty"`
}

// LatencyComponents breaks a translation's total latency down by stage.
// Network is always zero server-side; clients fill it in on receipt.
type LatencyComponents struct {
	Translation int64 `json:"translation"`
	TTS         int64 `json:"tts"`
	Processing  int64 `json:"processing"`
	Network     int64 `json:"network"`
}

// Latency is the latency block attached to every translation frame.
type Latency struct {
	Total      int64             `json:"total"`
	Components LatencyComponents `json:"components"`
}

// TranslationFrame carries one translated utterance to one student. Exactly
// one of AudioData or UseClientSpeech is populated when audio is available;
// both absent means text-only delivery.
type TranslationFrame struct {
	Type            string         `json:"type"`
	Text            string         `json:"text"`
	OriginalText    string         `json:"originalText"`
	SourceLanguage  string         `json:"sourceLanguage"`
	TargetLanguage  string         `json:"targetLanguage"`
	TTSServiceType  string         `json:"ttsServiceType,omitempty"`
	AudioData       string         `json:"audioData,omitempty"` // base64
	UseClientSpeech bool           `json:"useClientSpeech,omitempty"`
	SpeechParams    map[string]any `json:"speechParams,omitempty"`
	Latency         Latency        `json:"latency"`
}

// ErrorBody is the error payload inside tts_response and error frames.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TTSResponseFrame answers a tts_request.
type TTSResponseFrame struct {
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	AudioData       string         `json:"audioData,omitempty"`
	UseClientSpeech bool           `json:"useClientSpeech,omitempty"`
	SpeechParams    map[string]any `json:"speechParams,omitempty"`
	Error           *ErrorBody     `json:"error,omitempty"`
}

// StudentJoinedFrame notifies teachers that a student registered.
type StudentJoinedFrame struct {
	Type    string               `json:"type"`
	Payload StudentJoinedPayload `json:"payload"`
}

// StudentJoinedPayload identifies the joining student.
type StudentJoinedPayload struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// PongFrame answers an application-level ping.
type PongFrame struct {
	Type              string `json:"type"`
	Timestamp         int64  `json:"timestamp"`
	OriginalTimestamp int64  `json:"originalTimestamp,omitempty"`
}

// PingFrame is the application-level liveness probe.
type PingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// SettingsAck confirms a settings update and echoes the merged result.
type SettingsAck struct {
	Type     string   `json:"type"`
	Status   string   `json:"status"`
	Settings Settings `json:"settings"`
}

// SessionExpiredFrame precedes the close of a socket bound to an inactive
// session.
type SessionExpiredFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ErrorFrame is the generic outbound error.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Values of frame Status fields. StatusConnected appears only on the
// connection ack.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusConnected = "connected"
)
