package notify

import (
	"context"
	"fmt"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"

	pusher "github.com/pusher/pusher-http-go/v5"
)

// trigger is the part of the Pusher client used here.
type trigger interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// PusherPublisher publishes events through Pusher Channels.
type PusherPublisher struct {
	client trigger
}

func NewPusherPublisher(cfg config.PusherConfig) *PusherPublisher {
	return &PusherPublisher{
		client: &pusher.Client{
			AppID:   cfg.AppID,
			Key:     cfg.Key,
			Secret:  cfg.Secret,
			Cluster: cfg.Cluster,
			Secure:  true,
		},
	}
}

func (p *PusherPublisher) Publish(ctx context.Context, channel, event string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.Trigger(channel, event, payload); err != nil {
		return fmt.Errorf("pusher trigger %s/%s: %w", channel, event, err)
	}
	return nil
}
