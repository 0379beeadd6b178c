package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds the credentials and sender identity for Postmark.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	SupportEmail string
	// BaseURL overrides the Postmark API endpoint when set.
	BaseURL string
}

// PostmarkNotifier sends notifications as transactional email through Postmark.
type PostmarkNotifier struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

// NewPostmarkNotifier validates cfg and builds a Postmark-backed notifier.
func NewPostmarkNotifier(cfg PostmarkConfig) (*PostmarkNotifier, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: account token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &PostmarkNotifier{client: client, cfg: cfg}, nil
}

// Send delivers message as an HTML email. Both transport errors and
// Postmark API error codes are reported as ErrDeliveryFailed.
func (n *PostmarkNotifier) Send(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	replyTo := n.cfg.SupportEmail
	if replyTo == "" {
		replyTo = n.cfg.SenderEmail
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.cfg.SenderEmail,
		ReplyTo:  replyTo,
		To:       message.Destination,
		Subject:  message.Subject,
		Tag:      message.Kind,
		HTMLBody: message.Body,
	})
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrDeliveryFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
