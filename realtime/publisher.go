package realtime

import (
	"context"

	"fwdefense/core"
	"fwdefense/engine"
)

// HubPublisher delivers broadcasts straight to the in-process hub. Used in
// single-process deployments where no Redis relay sits between the game
// service and its websocket clients.
type HubPublisher struct {
	hub *Hub
}

func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, msg core.Message) error {
	p.hub.Broadcast(ctx, Marshal(msg))
	return nil
}

var _ engine.Publisher = (*HubPublisher)(nil)
