package gateway

import "encoding/json"

type GatewayOpcode = int

// https://discord.com/developers/docs/topics/opcodes-and-status-codes#gateway-gateway-opcodes
const (
	OpcodeDispatch           GatewayOpcode = 0
	OpcodeHeartbeat          GatewayOpcode = 1
	OpcodeIdentify           GatewayOpcode = 2
	OpcodePresenceUpdate     GatewayOpcode = 3
	OpcodeVoiceStateUpdate   GatewayOpcode = 4
	OpcodeResume             GatewayOpcode = 6
	OpcodeReconnect          GatewayOpcode = 7
	OpcodeRequestGuildMember GatewayOpcode = 8
	OpcodeInvalidSession     GatewayOpcode = 9
	OpcodeHello              GatewayOpcode = 10
	OpcodeHeartbeatAck       GatewayOpcode = 11
)

type GatewayCloseEventCode = int

const (
	UnknownError         GatewayCloseEventCode = 4000
	UnknownOpcode        GatewayCloseEventCode = 4001
	DecodeError          GatewayCloseEventCode = 4002
	NotAuthenticated     GatewayCloseEventCode = 4003
	AuthenticationFailed GatewayCloseEventCode = 4004
	AlreadyAuthenticated GatewayCloseEventCode = 4005
	InvalidSeq           GatewayCloseEventCode = 4007
	RateLimited          GatewayCloseEventCode = 4008
	SessionTimedOut      GatewayCloseEventCode = 4009
	DisallowedIntents    GatewayCloseEventCode = 4014
)

// Close codes this client uses itself. 1008 marks a zombied connection,
// 1012 tells the server we intend to come back.
const (
	CloseNormal         = 1000
	ClosePolicyViolation = 1008
	CloseServiceRestart = 1012
)

type EventName = string

const (
	EventNameReady   EventName = "READY"
	EventNameResumed EventName = "RESUMED"
)

// Payload is the wire envelope for every gateway message, inbound and
// outbound. Inbound payloads keep D raw so each opcode handler decodes
// only the shape it expects.
type Payload struct {
	Op GatewayOpcode   `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  EventName       `json:"t,omitempty"`
}

// command is an outbound payload; D is marshalled in place.
type command struct {
	Op GatewayOpcode `json:"op"`
	D  any           `json:"d"`
}

type HelloEventD struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type ReadyEventD struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

type IdentifyEventDProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type IdentifyEventD struct {
	Token          string                   `json:"token"`
	Intents        int                      `json:"intents"`
	Properties     IdentifyEventDProperties `json:"properties"`
	LargeThreshold int                      `json:"large_threshold,omitempty"`
}

type ResumeEventD struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type RequestGuildMembersEventD struct {
	GuildID   string   `json:"guild_id"`
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences"`
	UserIDs   []string `json:"user_ids,omitempty"`
}

type PresenceUpdateEventD struct {
	Since      int64  `json:"since"`
	Activities []any  `json:"activities"`
	Status     string `json:"status"`
	AFK        bool   `json:"afk"`
}

type VoiceStateUpdateEventD struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}
