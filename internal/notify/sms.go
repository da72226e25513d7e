package notify

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/config"
)

// messageCreator is the slice of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMS texts each configured operator number through Twilio. Successes are
// skipped unless asked for.
type SMS struct {
	api  messageCreator
	from string
	to   []string
	// Successes also sends success messages when set.
	Successes bool
}

func NewSMS(cfg config.SMSConfig) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMS{api: client.Api, from: cfg.From, to: cfg.To, Successes: cfg.Successes}
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) Notify(ctx context.Context, acct account.Account, success bool, message string) error {
	if success && !s.Successes {
		return nil
	}
	body := fmt.Sprintf("[sessionkeeper] %s: %s", Subject(acct), message)
	var errs []error
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)
		if _, err := s.api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("send sms to %s: %w", to, err))
		}
	}
	return stderrors.Join(errs...)
}
