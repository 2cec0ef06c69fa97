package push

import (
	"context"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCM limits a multicast to 500 registration tokens.
const maxMulticastTokens = 500

type FCM struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCM builds a Firebase Cloud Messaging notifier from a service
// account credentials file.
func NewFCM(ctx context.Context, credentialsFile string, logger *zap.Logger) (*FCM, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, errors.Wrap(err, "initialize firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get messaging client")
	}
	logger.Info("Firebase Messaging client initialized")
	return &FCM{client: client, logger: logger}, nil
}

func (f *FCM) Notify(ctx context.Context, tokens []string, n Notification) ([]string, error) {
	var invalid []string
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := f.client.SendMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: n.Title,
				Body:  n.Body,
			},
			Data: n.Data,
		})
		if err != nil {
			return invalid, errors.Wrap(err, "send multicast")
		}

		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			if messaging.IsRegistrationTokenNotRegistered(r.Error) {
				invalid = append(invalid, batch[i])
				continue
			}
			f.logger.Warn("push delivery failed", zap.Error(r.Error))
		}
	}
	return invalid, nil
}
