// Package notify reports refresh outcomes to operators.
package notify

import (
	"context"
	stderrors "errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring"
)

// Notifier delivers one message per refreshed account.
type Notifier interface {
	Notify(ctx context.Context, acct account.Account, success bool, message string) error
}

// Channel is a Notifier with a name for metrics.
type Channel interface {
	Notifier
	Name() string
}

// Log writes outcomes to the process log. It never fails.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Notify(_ context.Context, acct account.Account, success bool, message string) error {
	entry := logging.ForAccount(acct.Username).WithField("success", success)
	if success {
		entry.Info(message)
	} else {
		entry.Warn(message)
	}
	return nil
}

// Multi fans a message out to every channel, filtered by the success and
// failure switches. Channel errors are joined; one failing channel does not
// stop the others.
type Multi struct {
	channels  []Channel
	onSuccess bool
	onFailure bool
}

func NewMulti(onSuccess, onFailure bool, channels ...Channel) *Multi {
	return &Multi{channels: channels, onSuccess: onSuccess, onFailure: onFailure}
}

func (m *Multi) Notify(ctx context.Context, acct account.Account, success bool, message string) error {
	if (success && !m.onSuccess) || (!success && !m.onFailure) {
		return nil
	}
	var errs []error
	for _, ch := range m.channels {
		err := ch.Notify(ctx, acct, success, message)
		monitoring.RecordNotification(ch.Name(), err)
		if err != nil {
			log.WithError(err).WithField("channel", ch.Name()).Warn("notification failed")
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Channels lists the configured channel names.
func (m *Multi) Channels() []string {
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name()
	}
	return names
}

// New builds the notifier described by cfg. The log channel is always on.
func New(cfg *config.Config) *Multi {
	channels := []Channel{Log{}}
	if u := strings.TrimSpace(cfg.Notify.WebhookURL); u != "" {
		channels = append(channels, NewWebhook(u, nil))
	}
	if sms := cfg.Notify.SMS; sms.AccountSID != "" && sms.AuthToken != "" && sms.From != "" && len(sms.To) > 0 {
		channels = append(channels, NewSMS(sms))
	}
	return NewMulti(cfg.NotifyOnSuccess(), cfg.NotifyOnFailure(), channels...)
}

// Subject renders the account the way notifications name it.
func Subject(acct account.Account) string {
	name := logging.Account(acct.Username)
	if acct.Enterprise != "" {
		return acct.Enterprise + "/" + name
	}
	return name
}
