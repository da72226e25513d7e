package logging

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Mask hides the middle of an account name: "13812345678" -> "138*****678".
// Short names keep only their first rune.
func Mask(account string) string {
	r := []rune(account)
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 2:
		return string(r[0]) + "*"
	case len(r) <= 6:
		return string(r[0]) + stars(len(r)-2) + string(r[len(r)-1])
	}
	keep := len(r) / 4
	if keep > 3 {
		keep = 3
	}
	return string(r[:keep]) + stars(len(r)-2*keep) + string(r[len(r)-keep:])
}

func stars(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '*'
	}
	return string(b)
}

// Account renders an account name for logs, masked unless disabled in config.
func Account(account string) string {
	logMux.Lock()
	m := maskAccounts
	logMux.Unlock()
	if !m {
		return account
	}
	return Mask(account)
}

// ForAccount builds a log entry tagged with the (masked) account.
func ForAccount(account string) *log.Entry {
	return log.WithField("account", Account(account))
}

// DurationMS converts a duration to integer milliseconds for logging.
func DurationMS(d time.Duration) int64 { return d.Milliseconds() }
