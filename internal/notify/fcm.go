// README: FCM push gateway for drivers without a live websocket.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"gocab/internal/types"
)

// TokenSource resolves a driver id to its registered FCM device token.
type TokenSource interface {
	DeviceToken(ctx context.Context, driverID types.ID) (string, error)
}

// FCMGateway delivers events as FCM data messages.
type FCMGateway struct {
	client *messaging.Client
	tokens TokenSource
}

func NewFCMGateway(client *messaging.Client, tokens TokenSource) *FCMGateway {
	return &FCMGateway{client: client, tokens: tokens}
}

func (g *FCMGateway) Push(ctx context.Context, driverID types.ID, event string, payload any) error {
	token, err := g.tokens.DeviceToken(ctx, driverID)
	if err != nil {
		return fmt.Errorf("device token for %s: %w", driverID, err)
	}
	if token == "" {
		return ErrNoSession
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	_, err = g.client.Send(ctx, &messaging.Message{
		Token: token,
		Data: map[string]string{
			"event":   event,
			"payload": string(body),
		},
	})
	return err
}

var _ Gateway = (*FCMGateway)(nil)

// Multi tries each gateway in order until one delivers. The websocket hub
// goes first so connected drivers skip the push-provider round trip.
type Multi []Gateway

func (m Multi) Push(ctx context.Context, driverID types.ID, event string, payload any) error {
	var last error = ErrNoSession
	for _, g := range m {
		err := g.Push(ctx, driverID, event, payload)
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}
