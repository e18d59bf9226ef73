package sms

import (
	"github.com/smallbiznis/membership/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMS.APIKey == "" || cfg.SMS.BaseURL == "" {
		log.Warn("SMS gateway not configured, outgoing sms disabled")
		return &NoOpProvider{}
	}
	return NewHTTPClient(cfg.SMS.APIKey, cfg.SMS.BaseURL, cfg.SMS.Sender)
}
