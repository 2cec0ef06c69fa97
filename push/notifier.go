package push

import "context"

//go:generate mockgen -destination=../mocks/mock_notifier.go -package=mocks github.com/techagentng/dmchat/push Notifier

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier announces a message to devices of a user who has no live
// channel. It returns the tokens the provider reported as no longer
// registered.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, n Notification) ([]string, error)
}

// Nop is used when push credentials are not configured.
type Nop struct{}

func (Nop) Notify(context.Context, []string, Notification) ([]string, error) {
	return nil, nil
}
