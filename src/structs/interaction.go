package structs

// Minimal interaction shapes for the webhook receiver. Full object models
// are intentionally out of scope; collaborators decode the raw payload
// into their own types.

type InteractionType = uint8

const (
	InteractionTypePing                           InteractionType = 1
	InteractionTypeApplicationCommand             InteractionType = 2
	InteractionTypeMessageComponent               InteractionType = 3
	InteractionTypeApplicationCommandAutocomplete InteractionType = 4
	InteractionTypeModalSubmit                    InteractionType = 5
)

type InteractionApplicationCommandData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type uint   `json:"type"`
}

type Interaction struct {
	ID            string                            `json:"id"`
	ApplicationID string                            `json:"application_id"`
	Type          InteractionType                   `json:"type"`
	Data          InteractionApplicationCommandData `json:"data,omitempty"`
	GuildID       string                            `json:"guild_id,omitempty"`
	Token         string                            `json:"token"`
	Version       uint                              `json:"version"`
}

type InteractionResponseType = uint

const (
	InteractionResponseTypePong                     InteractionResponseType = 1
	InteractionResponseTypeChannelMessageWithSource InteractionResponseType = 4
)

type InteractionResponseDataMessage struct {
	Content string `json:"content,omitempty"`
	Flags   uint   `json:"flags,omitempty"`
}

type InteractionResponse struct {
	Type InteractionResponseType        `json:"type"`
	Data InteractionResponseDataMessage `json:"data,omitempty"`
}
