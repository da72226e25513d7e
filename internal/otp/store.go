package otp

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/logging"
)

// StorePoll waits for an external relay (an SMS forwarder, a phone
// shortcut) to drop the code into redis under "<enterprise>_<phone>".
type StorePoll struct {
	Client     redis.Cmdable
	Enterprise string
	Interval   time.Duration
	Attempts   int
	Format     Format

	sleep func(context.Context, time.Duration) error
}

func NewStorePoll(client redis.Cmdable, enterprise string, interval time.Duration, attempts int, format Format) *StorePoll {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if attempts <= 0 {
		attempts = 20
	}
	return &StorePoll{Client: client, Enterprise: enterprise, Interval: interval, Attempts: attempts, Format: format, sleep: sleep}
}

// Key is where the relay writes the code for phone.
func Key(enterprise, phone string) string { return enterprise + "_" + phone }

// Acquire polls up to Attempts times. A found code is deleted before it is
// validated so it can never be replayed.
func (s *StorePoll) Acquire(ctx context.Context, req Request) (string, error) {
	if req.Phone == "" {
		return "", apperrors.New(apperrors.KindCodeSource, "account has no phone number for store lookup")
	}
	enterprise := req.Enterprise
	if enterprise == "" {
		enterprise = s.Enterprise
	}
	key := Key(enterprise, req.Phone)
	entry := logging.ForAccount(req.Account).WithField("key", logging.Mask(key))

	for attempt := 1; attempt <= s.Attempts; attempt++ {
		code, err := s.Client.Get(ctx, key).Result()
		switch {
		case err == nil && code != "":
			if derr := s.Client.Del(ctx, key).Err(); derr != nil {
				entry.WithError(derr).Warn("failed to delete consumed code")
			}
			if !s.Format.Valid(code) {
				return "", apperrors.CodeFormat(code)
			}
			entry.WithField("attempt", attempt).Info("verification code received from store")
			return code, nil
		case err != nil && !errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			entry.WithError(err).WithField("attempt", attempt).Warn("code store read failed")
		default:
			entry.WithField("attempt", attempt).Debug("code not yet in store")
		}
		if attempt == s.Attempts {
			break
		}
		if err := s.sleep(ctx, s.Interval); err != nil {
			return "", err
		}
	}
	log.WithField("attempts", s.Attempts).Debug("store poll exhausted")
	return "", apperrors.CodeTimeout(string(ModeStore))
}
