package refresh

import (
	"time"

	apperrors "sessionkeeper-go/internal/errors"
)

// Outcome is the result of one account's refresh attempt.
type Outcome struct {
	RunID    string `json:"run_id"`
	Username string `json:"username"`
	Cause    Cause  `json:"cause"`
	Success  bool   `json:"success"`
	// Reason is the failure kind, empty on success.
	Reason         apperrors.Kind           `json:"reason,omitempty"`
	Classification apperrors.Classification `json:"classification,omitempty"`
	Message        string                   `json:"message"`
	// Missing lists optional tokens the login did not capture.
	Missing  []string      `json:"missing,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
	// Shared is set when the outcome came from a concurrent attempt on the
	// same account.
	Shared bool  `json:"shared,omitempty"`
	Err    error `json:"-"`
}

// Summary counts the outcomes of one run. It is not a pass/fail verdict.
type Summary struct {
	RunID     string        `json:"run_id"`
	Accounts  int           `json:"accounts"`
	Checked   int           `json:"checked"`
	WorkSet   int           `json:"work_set"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Canceled  int           `json:"canceled"`
	Duration  time.Duration `json:"duration"`
	Outcomes  []Outcome     `json:"outcomes,omitempty"`
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch {
	case o.Success:
		s.Succeeded++
	case o.Reason == apperrors.KindCanceled:
		s.Canceled++
	default:
		s.Failed++
	}
}
