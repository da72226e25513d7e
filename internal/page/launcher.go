package page

import (
	"fmt"

	"sessionkeeper-go/internal/config"
)

// NewLauncher picks the driver named in cfg.
func NewLauncher(cfg *config.Config) (Launcher, error) {
	b := cfg.Browser
	opts := Options{
		Headless:     cfg.Headless(),
		Proxy:        b.Proxy,
		UserAgent:    b.UserAgent,
		ExecPath:     b.ExecPath,
		WindowWidth:  b.WindowWidth,
		WindowHeight: b.WindowHeight,
		NavTimeout:   b.NavTimeout,
	}
	switch b.Driver {
	case "", config.DriverChromedp:
		return NewChromeLauncher(opts), nil
	case config.DriverPlaywright:
		return NewPlaywrightLauncher(opts), nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", b.Driver)
}
