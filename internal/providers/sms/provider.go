package sms

import "context"

// Channel selects the carrier route for a text message.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

type Provider interface {
	Send(ctx context.Context, phone string, text string, channel Channel) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, phone string, text string, channel Channel) error {
	return nil
}
