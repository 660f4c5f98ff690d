package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/petrelware/petrel/src"
	"github.com/petrelware/petrel/src/gateway"
	"github.com/petrelware/petrel/src/structs"
	"github.com/petrelware/petrel/src/utils"
	"github.com/petrelware/petrel/src/webhook"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	err := godotenv.Load()
	if err != nil {
		panic("failed to load config file")
	}
	cfg := utils.LoadConfiguration()
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	client := src.NewClient(src.ClientArguments{
		BotToken: cfg.DiscordBotToken,
		BotIntent: []gateway.GatewayIntent{
			gateway.GuildsIntent,
			gateway.GuildMessagesIntent,
		},
	})
	client.Gateway.OnDispatch(func(event gateway.EventName, data json.RawMessage) {
		slog.Info("dispatch received", "event", event)
	})

	server, err := webhook.NewServer(webhook.ServerArguments{
		PublicKeyHex: cfg.DiscordPublicKey,
		Handler: func(i *structs.Interaction) (*structs.InteractionResponse, error) {
			return &structs.InteractionResponse{
				Type: structs.InteractionResponseTypeChannelMessageWithSource,
				Data: structs.InteractionResponseDataMessage{
					Content: "hello world",
				},
			}, nil
		},
	})
	if err != nil {
		slog.Error("failed to create webhook server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := server.StartServer(ctx, cfg.APIAddress); err != nil {
			slog.Error("webhook server failed", "error", err)
			stop()
		}
	}()
	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("gateway stopped", "error", err)
			stop()
		}
	}()
	<-ctx.Done()
}
