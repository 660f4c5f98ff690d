package utils

import (
	"fmt"
	"log/slog"
	"os"
)

type AppConfig struct {
	DiscordBotToken  string
	DiscordPublicKey string
	APIAddress       string
	AppEnv           string
}

func LoadConfiguration() AppConfig {
	cfg := AppConfig{}
	requiredEnv := map[string]*string{
		"DC_BOT_TOKEN":  &cfg.DiscordBotToken,
		"DC_PUBLIC_KEY": &cfg.DiscordPublicKey,
		"API_ADDRESS":   &cfg.APIAddress,
		"APP_ENV":       &cfg.AppEnv,
	}
	for k, v := range requiredEnv {
		if val, ok := os.LookupEnv(k); !ok {
			slog.Error(fmt.Sprintf("Provide: %s", k))
			os.Exit(1)
		} else {
			*v = val
		}
	}
	return cfg
}
