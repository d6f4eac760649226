package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fpt/gemini-discuss/internal/config"
	"github.com/fpt/gemini-discuss/internal/gateway"
	"github.com/fpt/gemini-discuss/internal/router"
	"github.com/fpt/gemini-discuss/pkg/client/gemini"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect the configured adapters and answer messages",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer st.Close()

	bot := settings.BotIdentity()
	params := config.NewLayeredParams(st, settings)
	rt := router.New(bot, settings.Gateway.BroadcastChannelID, settings.Bot.Aliases...)
	bridge := gemini.NewBridge(gemini.Options{
		Models:            st,
		Timeout:           settings.Timeout(),
		MaxOutputTokens:   settings.Gemini.MaxOutputTokens,
		SystemInstruction: settings.Gemini.SystemInstruction,
		Logger:            logger.WithComponent("gemini-bridge"),
	})

	if key, err := params.Get(ctx, discuss.ParamAPIKey); err == nil && key == "" {
		logger.Warn("Gemini API key is not set; replies will fail until it is configured",
			"hint", "gemini-discuss config set api_key <key>")
	}

	gw := gateway.NewGateway(settings.Gateway, bot, rt, bridge, params, logger)
	defer gw.Close()
	if err := gw.AddConfiguredAdapters(); err != nil {
		return err
	}

	logger.InfoWithIntention(pkgLogger.IntentionStatus, "gemini-discuss starting",
		"bot", bot.Name,
		"broadcast_channel", settings.Gateway.BroadcastChannelID,
		"discord", settings.Gateway.Discord.Token != "",
		"telegram", settings.Gateway.Telegram.Token != "",
		"amqp", settings.Gateway.AMQP.URL != "")

	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoWithIntention(pkgLogger.IntentionStatus, "Shut down")
	return nil
}
