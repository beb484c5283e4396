package main

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/alert/discord"
	"github.com/efyoos/bellhop/internal/alert/slack"
	"github.com/efyoos/bellhop/internal/alert/sms"
	"github.com/efyoos/bellhop/internal/classify"
	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/db"
	"github.com/efyoos/bellhop/internal/dispatch"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/staffreply"
	"github.com/efyoos/bellhop/internal/store"
)

// app is the wired object graph shared by serve, heartbeat and escalate.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	store   *store.Store
	raiser  *alert.Raiser
	engine  *dispatch.Engine
	replies *staffreply.Handler
	logger  *slog.Logger
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

func buildApp(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, logger *slog.Logger) (*app, error) {
	st := store.New(gormDB)
	enforcer := idempotency.New(idempotency.NewGormStore(gormDB), logger)

	gateway, err := notify.New(cfg.WhatsApp, logger)
	if err != nil {
		return nil, err
	}
	classifier, err := classify.New(cfg.Classifier, logger)
	if err != nil {
		return nil, err
	}
	channels, err := alertChannels(ctx, cfg, gateway, logger)
	if err != nil {
		return nil, err
	}
	raiser := alert.NewRaiser(st, channels, logger)

	engine, err := dispatch.New(dispatch.Opts{
		Store:      st,
		Enforcer:   enforcer,
		Gateway:    gateway,
		Classifier: classifier,
		Alerts:     raiser,
		Config:     cfg.Dispatch,
		Language:   cfg.WhatsApp.Language,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	replies, err := staffreply.New(staffreply.Opts{
		Store:    st,
		Enforcer: enforcer,
		Gateway:  gateway,
		Alerts:   raiser,
		Language: cfg.WhatsApp.Language,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		db:      gormDB,
		store:   st,
		raiser:  raiser,
		engine:  engine,
		replies: replies,
		logger:  logger,
	}, nil
}

// alertChannels returns every admin channel. Unconfigured WhatsApp, e-mail
// and SMS stay in the list and report a skip per alert; Slack and Discord
// are only added when configured.
func alertChannels(ctx context.Context, cfg *config.Config, gateway notify.Gateway, logger *slog.Logger) ([]alert.Channel, error) {
	channels := []alert.Channel{alert.NewWhatsAppChannel(gateway, cfg.WhatsApp.AdminLanguage)}

	var sender alert.EmailSender
	if cfg.Alerts.Email.From != "" {
		ses, err := alert.NewSESSender(ctx, cfg.Alerts.Email.From, cfg.Alerts.Email.Region)
		if err != nil {
			return nil, err
		}
		sender = ses
	}
	channels = append(channels, alert.NewEmailChannel(sender))

	smsCfg := cfg.Alerts.SMS
	channels = append(channels, sms.New(sms.Opts{AccountSID: smsCfg.AccountSID, AuthToken: smsCfg.AuthToken, From: smsCfg.From}))

	if sc := cfg.Alerts.Slack; sc.BotToken != "" {
		ch, err := slack.New(slack.Opts{BotToken: sc.BotToken, ChannelID: sc.Channel})
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if dc := cfg.Alerts.Discord; dc.BotToken != "" {
		ch, err := discord.New(discord.Opts{BotToken: dc.BotToken, ChannelID: dc.ChannelID, Logger: logger})
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
