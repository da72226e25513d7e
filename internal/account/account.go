// Package account holds the account model and the registries that list
// accounts and record status transitions.
package account

import (
	"context"
	"errors"
	"strings"

	apperrors "sessionkeeper-go/internal/errors"
)

// Status is the persisted account status.
type Status string

const (
	StatusNormal        Status = "normal"
	StatusBanned        Status = "banned"
	StatusPasswordError Status = "password_error"
)

// ParseStatus maps a stored value to a Status. Empty means normal.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusNormal:
		return StatusNormal, true
	case StatusBanned:
		return StatusBanned, true
	case StatusPasswordError:
		return StatusPasswordError, true
	}
	return "", false
}

// Kind selects the credential sub-flow of the login page.
type Kind string

const (
	KindStandard Kind = "standard"
	// KindFederated logs in through the QQ frame.
	KindFederated Kind = "federated"
)

// ParseKind accepts the stored spellings; "acc" and "normal" are standard, "qq" is federated.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "acc", "normal":
		return KindStandard, true
	case "federated", "qq":
		return KindFederated, true
	}
	return "", false
}

// Account is one login identity.
type Account struct {
	Username   string `yaml:"username" json:"username" bson:"username"`
	Password   string `yaml:"password" json:"password" bson:"password"`
	Phone      string `yaml:"phone" json:"phone" bson:"phone"`
	Enabled    bool   `yaml:"enabled" json:"enabled" bson:"enabled"`
	Status     Status `yaml:"status" json:"status" bson:"status"`
	Kind       Kind   `yaml:"kind" json:"kind" bson:"kind"`
	Enterprise string `yaml:"enterprise" json:"enterprise" bson:"enterprise"`
	// CodeMode and VoiceMode override the configured code acquisition mode.
	CodeMode   string `yaml:"code_mode" json:"code_mode" bson:"code_mode"`
	VoiceMode  string `yaml:"voice_mode" json:"voice_mode" bson:"voice_mode"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url" bson:"webhook_url"`
	// ForceUpdate puts the account in every work set regardless of validity.
	ForceUpdate bool `yaml:"force_update" json:"force_update" bson:"force_update"`
}

// Eligible reports whether the account may be logged in. Banned accounts
// stay out until an operator clears the status; password errors are retried.
func (a Account) Eligible() bool {
	return a.Enabled && a.Status != StatusBanned
}

// normalize fills empty enum fields.
func (a *Account) normalize(enterprise string) {
	if st, ok := ParseStatus(string(a.Status)); ok {
		a.Status = st
	}
	if k, ok := ParseKind(string(a.Kind)); ok {
		a.Kind = k
	}
	if a.Enterprise == "" {
		a.Enterprise = enterprise
	}
}

// StatusFor maps a notice classification to the status it records.
// Unknown notices change nothing.
func StatusFor(class apperrors.Classification) (Status, bool) {
	switch class {
	case apperrors.Banned:
		return StatusBanned, true
	case apperrors.PasswordError:
		return StatusPasswordError, true
	}
	return "", false
}

// ErrNotFound is returned by UpdateStatus for an unknown username.
var ErrNotFound = errors.New("account: not found")

// Registry is the account source.
type Registry interface {
	// ListAccounts returns the accounts tagged with enterprise, in a stable order.
	ListAccounts(ctx context.Context, enterprise string) ([]Account, error)
	UpdateStatus(ctx context.Context, username string, status Status) error
	Close() error
}

// Eligible filters accounts down to those that may be logged in.
func Eligible(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Eligible() {
			out = append(out, a)
		}
	}
	return out
}
