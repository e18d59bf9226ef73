// Package delivery routes outbound notifications to the email or text provider.
package delivery

import (
	"context"
	"strings"

	"github.com/smallbiznis/membership/internal/providers/email"
	"github.com/smallbiznis/membership/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Message is rendered from Template when set, otherwise Subject and Text are sent as is.
type Message struct {
	Subject  string
	Text     string
	Template string
	Data     map[string]any
}

// Gateway reports delivery success as a boolean. Provider errors are logged here
// and never surface to callers.
type Gateway interface {
	Send(ctx context.Context, target string, msg Message, channel Channel) bool
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Email email.Provider
	SMS   sms.Provider
}

type gateway struct {
	log   *zap.Logger
	email email.Provider
	sms   sms.Provider
}

func NewGateway(p Params) Gateway {
	return &gateway{
		log:   p.Log.Named("delivery.gateway"),
		email: p.Email,
		sms:   p.SMS,
	}
}

func (g *gateway) Send(ctx context.Context, target string, msg Message, channel Channel) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		g.log.Warn("delivery skipped, empty target", zap.String("channel", string(channel)))
		return false
	}

	var err error
	switch channel {
	case ChannelEmail:
		if g.email == nil {
			return false
		}
		if msg.Template != "" {
			err = g.email.SendTemplate(ctx, []string{target}, msg.Template, msg.Data)
		} else {
			err = g.email.Send(ctx, []string{target}, msg.Subject, msg.Text)
		}
	case ChannelSMS, ChannelWhatsApp:
		if g.sms == nil {
			return false
		}
		err = g.sms.Send(ctx, target, msg.Text, sms.Channel(channel))
	default:
		g.log.Warn("delivery skipped, unsupported channel", zap.String("channel", string(channel)))
		return false
	}

	if err != nil {
		g.log.Warn("delivery failed",
			zap.String("channel", string(channel)),
			zap.String("template", msg.Template),
			zap.Error(err),
		)
		return false
	}
	return true
}
