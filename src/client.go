package src

import (
	"context"
	"log/slog"
	"os"

	"github.com/petrelware/petrel/src/gateway"
	"github.com/petrelware/petrel/src/rest"
)

// Client ties the gateway connection and the rate-limited REST executor
// together under one token and one logger. Everything that knows about
// specific endpoints or event shapes sits on top of this.
type Client struct {
	Gateway *gateway.Gateway
	REST    *rest.REST

	log *slog.Logger
}

type ClientArguments struct {
	BotToken  string
	BotIntent []gateway.GatewayIntent

	// GatewayURL overrides websocket url discovery; leave empty outside
	// of tests.
	GatewayURL string

	Logger *slog.Logger
}

func NewClient(args ClientArguments) *Client {
	logger := args.Logger
	if logger == nil {
		logger = slog.New(NewCustomHandler(os.Stdout, CustomHandlerOpts{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
		}))
	}
	restAPI := rest.NewREST(rest.RESTArguments{
		BotToken: args.BotToken,
		Logger:   logger,
	})
	gw := gateway.NewGateway(gateway.GatewayArguments{
		BotToken:   args.BotToken,
		BotIntent:  args.BotIntent,
		GatewayURL: args.GatewayURL,
		REST:       restAPI,
		Logger:     logger,
	})
	return &Client{
		Gateway: gw,
		REST:    restAPI,
		log:     logger,
	}
}

// Run blocks on the gateway lifecycle until ctx is cancelled or the
// connection fails beyond recovery.
func (c *Client) Run(ctx context.Context) error {
	defer c.REST.Close()
	return c.Gateway.Open(ctx)
}
