package telegram

import (
	"context"
)

// Sender is how the dispatcher and the worker pool hand audio back to
// chats. Both processes construct their own Sender over the same bot
// token.
type Sender struct {
	client *Client
}

func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

func (s *Sender) DeliverAudio(ctx context.Context, chatID int64, audio []byte) error {
	return s.client.SendVoice(ctx, chatID, audio)
}

func (s *Sender) DeliverError(ctx context.Context, chatID int64, message string) error {
	return s.client.SendMessage(ctx, chatID, message)
}
