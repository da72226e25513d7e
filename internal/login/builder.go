package login

import (
	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/challenge"
	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/otp"
	"sessionkeeper-go/internal/vision"
)

// Builder assembles a fresh Session, with its own solvers, per account.
type Builder struct {
	cfg     *config.Config
	codes   otp.Provider
	prompts challenge.PromptReader
	glyphs  *vision.GlyphSet
	opts    Options
	// solverOpts seeds every solver; the logger is replaced per account.
	solverOpts challenge.Options
}

// NewBuilder wires the shared collaborators. glyphs may be nil, in which
// case ordered character challenges are refreshed until the budget runs out.
func NewBuilder(cfg *config.Config, codes otp.Provider, glyphs *vision.GlyphSet) *Builder {
	return &Builder{
		cfg:        cfg,
		codes:      codes,
		prompts:    challenge.NewPromptReader(cfg.Challenge.PromptOCRURL),
		glyphs:     glyphs,
		solverOpts: challenge.OptionsFromConfig(cfg.Challenge),
	}
}

// WithOptions overrides the session and solver tuning, mostly for tests.
func (b *Builder) WithOptions(opts Options, solverOpts challenge.Options) *Builder {
	c := *b
	c.opts = opts
	c.solverOpts = solverOpts
	return &c
}

// Solvers returns the challenge gates in the order the page raises them.
func (b *Builder) Solvers(acct account.Account) []Solver {
	so := b.solverOpts
	so.Logger = logging.ForAccount(acct.Username)
	solvers := []Solver{challenge.NewSlider(b.cfg.Login.Selectors, b.cfg.Challenge, so)}
	if b.cfg.ShapeChallengeEnabled() {
		solvers = append(solvers, challenge.NewSelection(b.cfg.Login.Selectors, b.cfg.Challenge, b.prompts, b.glyphs, so))
	}
	return solvers
}

// Session builds the session for acct.
func (b *Builder) Session(acct account.Account) *Session {
	if acct.Enterprise == "" {
		acct.Enterprise = b.cfg.Enterprise
	}
	return NewSession(b.cfg, acct, b.Solvers(acct), b.codes, b.opts)
}
