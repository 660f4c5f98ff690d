package gateway

// https://discord.com/developers/docs/events/gateway#message-content-intent
type GatewayIntent = int

var (
	GuildsIntent                      = 1 << 0
	GuildMembersIntent                = 1 << 1
	GuildModerationIntent             = 1 << 2
	GuildExpressionIntent             = 1 << 3
	GuildIntegrationsIntent           = 1 << 4
	GuildWebhooksIntent               = 1 << 5
	GuildInvitesIntent                = 1 << 6
	GuildVoiceStatesIntent            = 1 << 7
	GuildPresencesIntent              = 1 << 8
	GuildMessagesIntent               = 1 << 9
	GuildMessageReactionIntent        = 1 << 10
	GuildMessageTypingIntent          = 1 << 11
	DirectMessageIntent               = 1 << 12
	DirectMessageReactionIntent       = 1 << 13
	DirectMessageTypingIntent         = 1 << 14
	MessageContentIntent              = 1 << 15
	GuildScheduledEventsIntent        = 1 << 16
	AutoModerationConfigurationIntent = 1 << 20
	AutoModerationExecutionIntent     = 1 << 21
	GuildMessagePollsIntent           = 1 << 24
	DirectMessagePollsIntent          = 1 << 25
)
