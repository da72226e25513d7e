package config

import "strings"

const envPrefix = "SK_"

func applyEnv(cfg *Config) {
	setStringFromEnv(envPrefix+"ENTERPRISE", &cfg.Enterprise)
	setStringFromEnv(envPrefix+"MODE", &cfg.Mode)
	cfg.Mode = strings.ToLower(cfg.Mode)

	setBoolFromEnv(envPrefix+"DEBUG", &cfg.Log.Debug)
	setStringFromEnv(envPrefix+"LOG_LEVEL", &cfg.Log.Level)
	setStringFromEnv(envPrefix+"LOG_FORMAT", &cfg.Log.Format)
	setStringFromEnv(envPrefix+"LOG_FILE", &cfg.Log.File)
	setToggleFromEnv(envPrefix+"MASK_ACCOUNTS", &cfg.Log.MaskAccounts)

	setStringFromEnv(envPrefix+"BROWSER_DRIVER", &cfg.Browser.Driver)
	setToggleFromEnv(envPrefix+"HEADLESS", &cfg.Browser.Headless)
	setStringFromEnv(envPrefix+"PROXY", &cfg.Browser.Proxy)
	setStringFromEnv(envPrefix+"USER_AGENT", &cfg.Browser.UserAgent)
	setStringFromEnv(envPrefix+"BROWSER_PATH", &cfg.Browser.ExecPath)

	setDurationFromEnv(envPrefix+"LANDING_TIMEOUT", &cfg.Login.LandingTimeout)
	if v := getenv(envPrefix+"REQUIRED_TOKENS", ""); v != "" {
		cfg.Login.RequiredTokens = splitAndTrim(v, ",")
	}
	setToggleFromEnv(envPrefix+"SHAPE_CHALLENGE", &cfg.Login.ShapeChallenge)

	setIntFromEnv(envPrefix+"CHALLENGE_RETRIES", &cfg.Challenge.RetryBudget)
	setStringFromEnv(envPrefix+"GLYPH_DIR", &cfg.Challenge.GlyphDir)
	setStringFromEnv(envPrefix+"PROMPT_OCR_URL", &cfg.Challenge.PromptOCRURL)

	setStringFromEnv(envPrefix+"CODE_MODE", &cfg.Code.DefaultMode)
	setStringFromEnv(envPrefix+"CODE_WEBHOOK", &cfg.Code.WebhookURL)
	setDurationFromEnv(envPrefix+"CODE_MANUAL_TIMEOUT", &cfg.Code.ManualTimeout)
	setDurationFromEnv(envPrefix+"CODE_POLL_INTERVAL", &cfg.Code.PollInterval)
	setIntFromEnv(envPrefix+"CODE_POLL_ATTEMPTS", &cfg.Code.PollAttempts)

	setIntFromEnv(envPrefix+"CONCURRENCY", &cfg.Refresh.Concurrency)
	setDurationFromEnv(envPrefix+"REFRESH_INTERVAL", &cfg.Refresh.Interval)
	setStringFromEnv(envPrefix+"VALIDITY_URL", &cfg.Refresh.ValidityURL)

	setStringFromEnv(envPrefix+"STORAGE_BACKEND", &cfg.Storage.Backend)
	setStringFromEnv(envPrefix+"REDIS_ADDR", &cfg.Storage.Redis.Addr)
	setStringFromEnv(envPrefix+"REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	setIntFromEnv(envPrefix+"REDIS_DB", &cfg.Storage.Redis.DB)
	setStringFromEnv(envPrefix+"REDIS_KEY", &cfg.Storage.Redis.Key)
	setStringFromEnv(envPrefix+"CREDENTIAL_FILE", &cfg.Storage.File)
	setStringFromEnv(envPrefix+"MONGODB_URI", &cfg.Storage.Mongo.URI)
	setStringFromEnv(envPrefix+"MONGODB_DATABASE", &cfg.Storage.Mongo.Database)

	setStringFromEnv(envPrefix+"ACCOUNTS_BACKEND", &cfg.Accounts.Backend)
	setStringFromEnv(envPrefix+"ACCOUNTS_FILE", &cfg.Accounts.File)
	setStringFromEnv(envPrefix+"POSTGRES_DSN", &cfg.Accounts.PostgresDSN)
	setStringFromEnv(envPrefix+"ACCOUNTS_MONGODB_URI", &cfg.Accounts.Mongo.URI)

	setToggleFromEnv(envPrefix+"NOTIFY_SUCCESS", &cfg.Notify.OnSuccess)
	setToggleFromEnv(envPrefix+"NOTIFY_FAILURE", &cfg.Notify.OnFailure)
	setStringFromEnv(envPrefix+"NOTIFY_WEBHOOK", &cfg.Notify.WebhookURL)
	setStringFromEnv("TWILIO_ACCOUNT_SID", &cfg.Notify.SMS.AccountSID)
	setStringFromEnv("TWILIO_AUTH_TOKEN", &cfg.Notify.SMS.AuthToken)
	setStringFromEnv("TWILIO_FROM_NUMBER", &cfg.Notify.SMS.From)
	if v := getenv(envPrefix+"NOTIFY_SMS_TO", ""); v != "" {
		cfg.Notify.SMS.To = splitAndTrim(v, ",")
	}
	setBoolFromEnv(envPrefix+"NOTIFY_SMS_SUCCESSES", &cfg.Notify.SMS.Successes)

	setStringFromEnv(envPrefix+"METRICS_ADDR", &cfg.Metrics.Addr)
	setStringFromEnv(envPrefix+"METRICS_TOKEN", &cfg.Metrics.Token)

	setStringFromEnv(envPrefix+"TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	setToggleFromEnv(envPrefix+"TRACING_INSECURE", &cfg.Tracing.Insecure)
}
