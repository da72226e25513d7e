package config

import "time"

// Config is the immutable runtime configuration. Build it with Load and
// hand it to constructors; a reload produces a new value.
type Config struct {
	Enterprise string `yaml:"enterprise" json:"enterprise"`
	// Mode is "interactive" or "cron". Cron runs never block on a terminal.
	Mode string `yaml:"mode" json:"mode"`

	Log       LogConfig       `yaml:"log" json:"log"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Login     LoginConfig     `yaml:"login" json:"login"`
	Challenge ChallengeConfig `yaml:"challenge" json:"challenge"`
	Code      CodeConfig      `yaml:"code" json:"code"`
	Refresh   RefreshConfig   `yaml:"refresh" json:"refresh"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Accounts  AccountsConfig  `yaml:"accounts" json:"accounts"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

type LogConfig struct {
	// Debug forces the debug level and, unless Format says otherwise, text output.
	Debug bool `yaml:"debug" json:"debug"`
	// Level is a logrus level name; empty means info.
	Level string `yaml:"level" json:"level"`
	// Format is json or text.
	Format       string `yaml:"format" json:"format"`
	File         string `yaml:"file" json:"file"`
	MaskAccounts *bool  `yaml:"mask_accounts" json:"mask_accounts"`
}

type BrowserConfig struct {
	// Driver selects the automation backend: chromedp or playwright.
	Driver       string        `yaml:"driver" json:"driver"`
	Headless     *bool         `yaml:"headless" json:"headless"`
	Proxy        string        `yaml:"proxy" json:"proxy"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	ExecPath     string        `yaml:"exec_path" json:"exec_path"`
	WindowWidth  int           `yaml:"window_width" json:"window_width"`
	WindowHeight int           `yaml:"window_height" json:"window_height"`
	NavTimeout   time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
}

type LoginConfig struct {
	URL            string          `yaml:"url" json:"url"`
	LandingTimeout time.Duration   `yaml:"landing_timeout" json:"landing_timeout"`
	NoticeTimeout  time.Duration   `yaml:"notice_timeout" json:"notice_timeout"`
	CodeGateProbe  time.Duration   `yaml:"code_gate_probe" json:"code_gate_probe"`
	TypeDelayMin   time.Duration   `yaml:"type_delay_min" json:"type_delay_min"`
	TypeDelayMax   time.Duration   `yaml:"type_delay_max" json:"type_delay_max"`
	TokenNames     []string        `yaml:"token_names" json:"token_names"`
	RequiredTokens []string        `yaml:"required_tokens" json:"required_tokens"`
	ShapeChallenge *bool           `yaml:"shape_challenge" json:"shape_challenge"`
	Selectors      SelectorsConfig `yaml:"selectors" json:"selectors"`
}

// SelectorsConfig holds every CSS selector and marker text the login flow
// relies on. Empty fields take their defaults.
type SelectorsConfig struct {
	PasswordTab      string `yaml:"password_tab" json:"password_tab"`
	Username         string `yaml:"username" json:"username"`
	Password         string `yaml:"password" json:"password"`
	Submit           string `yaml:"submit" json:"submit"`
	FederatedEntry   string `yaml:"federated_entry" json:"federated_entry"`
	FederatedFrame   string `yaml:"federated_frame" json:"federated_frame"`
	FederatedSwitch  string `yaml:"federated_switch" json:"federated_switch"`
	FederatedUser    string `yaml:"federated_user" json:"federated_user"`
	FederatedPass    string `yaml:"federated_pass" json:"federated_pass"`
	FederatedSubmit  string `yaml:"federated_submit" json:"federated_submit"`
	FederatedVerify  string `yaml:"federated_verify" json:"federated_verify"`
	SliderButton     string `yaml:"slider_button" json:"slider_button"`
	SliderWidget     string `yaml:"slider_widget" json:"slider_widget"`
	SliderPiece      string `yaml:"slider_piece" json:"slider_piece"`
	SliderBackground string `yaml:"slider_background" json:"slider_background"`
	SliderRefresh    string `yaml:"slider_refresh" json:"slider_refresh"`
	ShapeWidget      string `yaml:"shape_widget" json:"shape_widget"`
	ShapeImage       string `yaml:"shape_image" json:"shape_image"`
	ShapePrompt      string `yaml:"shape_prompt" json:"shape_prompt"`
	ShapeConfirm     string `yaml:"shape_confirm" json:"shape_confirm"`
	ShapeRefresh     string `yaml:"shape_refresh" json:"shape_refresh"`
	SMSEntryText     string `yaml:"sms_entry_text" json:"sms_entry_text"`
	SMSEntry         string `yaml:"sms_entry" json:"sms_entry"`
	SMSInput         string `yaml:"sms_input" json:"sms_input"`
	SMSSend          string `yaml:"sms_send" json:"sms_send"`
	SMSCodeField     string `yaml:"sms_code_field" json:"sms_code_field"`
	SMSSubmit        string `yaml:"sms_submit" json:"sms_submit"`
	VoiceHeaderText  string `yaml:"voice_header_text" json:"voice_header_text"`
	VoiceCodeField   string `yaml:"voice_code_field" json:"voice_code_field"`
	VoiceSubmit      string `yaml:"voice_submit" json:"voice_submit"`
	NoticeError      string `yaml:"notice_error" json:"notice_error"`
	NoticeTip        string `yaml:"notice_tip" json:"notice_tip"`
	Landing          string `yaml:"landing" json:"landing"`
}

type ChallengeConfig struct {
	RetryBudget     int           `yaml:"retry_budget" json:"retry_budget"`
	AwaitTimeout    time.Duration `yaml:"await_timeout" json:"await_timeout"`
	DelayMin        time.Duration `yaml:"delay_min" json:"delay_min"`
	DelayMax        time.Duration `yaml:"delay_max" json:"delay_max"`
	SlideDifference int           `yaml:"slide_difference" json:"slide_difference"`
	MinSimilarity   float64       `yaml:"min_similarity" json:"min_similarity"`
	MinColorArea    int           `yaml:"min_color_area" json:"min_color_area"`
	BoxMargin       int           `yaml:"box_margin" json:"box_margin"`
	// GlyphDir holds reference glyph images named after the character
	// they depict, used for ordered character challenges.
	GlyphDir string `yaml:"glyph_dir" json:"glyph_dir"`
	// PromptOCRURL receives prompt images when the prompt is not exposed as text.
	PromptOCRURL string `yaml:"prompt_ocr_url" json:"prompt_ocr_url"`
}

type CodeConfig struct {
	// DefaultMode applies to accounts without their own mode:
	// manual, webhook, store or disabled.
	DefaultMode    string        `yaml:"default_mode" json:"default_mode"`
	WebhookURL     string        `yaml:"webhook_url" json:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" json:"webhook_timeout"`
	ManualTimeout  time.Duration `yaml:"manual_timeout" json:"manual_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	PollAttempts   int           `yaml:"poll_attempts" json:"poll_attempts"`
	Length         int           `yaml:"length" json:"length"`
}

type RefreshConfig struct {
	Concurrency      int           `yaml:"concurrency" json:"concurrency"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	ValidityURL      string        `yaml:"validity_url" json:"validity_url"`
	ValidityTimeout  time.Duration `yaml:"validity_timeout" json:"validity_timeout"`
	ValidityInterval time.Duration `yaml:"validity_interval" json:"validity_interval"`
	ValidityCacheTTL time.Duration `yaml:"validity_cache_ttl" json:"validity_cache_ttl"`
	// RefreshAllWhenEmpty treats every account as missing when the store holds nothing.
	RefreshAllWhenEmpty *bool `yaml:"refresh_all_when_empty" json:"refresh_all_when_empty"`
}

type StorageConfig struct {
	// Backend is redis, file or mongodb.
	Backend string      `yaml:"backend" json:"backend"`
	Redis   RedisConfig `yaml:"redis" json:"redis"`
	File    string      `yaml:"file" json:"file"`
	Mongo   MongoConfig `yaml:"mongo" json:"mongo"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// Key is the hash holding username to cookie string.
	Key string `yaml:"key" json:"key"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Database string `yaml:"database" json:"database"`
}

type AccountsConfig struct {
	// Backend is file, postgres or mongodb.
	Backend     string      `yaml:"backend" json:"backend"`
	File        string      `yaml:"file" json:"file"`
	PostgresDSN string      `yaml:"postgres_dsn" json:"postgres_dsn"`
	Mongo       MongoConfig `yaml:"mongo" json:"mongo"`
}

type NotifyConfig struct {
	OnSuccess  *bool     `yaml:"on_success" json:"on_success"`
	OnFailure  *bool     `yaml:"on_failure" json:"on_failure"`
	WebhookURL string    `yaml:"webhook_url" json:"webhook_url"`
	SMS        SMSConfig `yaml:"sms" json:"sms"`
}

type SMSConfig struct {
	AccountSID string   `yaml:"account_sid" json:"account_sid"`
	AuthToken  string   `yaml:"auth_token" json:"auth_token"`
	From       string   `yaml:"from" json:"from"`
	To         []string `yaml:"to" json:"to"`
	// Successes also texts successful refreshes; failures are always sent.
	Successes bool `yaml:"successes" json:"successes"`
}

// MetricsConfig configures the ops listener of the serve command.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// Token guards POST /api/refresh; empty leaves it open.
	Token string `yaml:"token" json:"token"`
}

// TracingConfig enables OTLP/gRPC span export. The standard OTEL_* variables
// fill in whatever is left empty.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    *bool   `yaml:"insecure" json:"insecure"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// Cron reports whether the run is non-interactive.
func (c *Config) Cron() bool { return c != nil && c.Mode == ModeCron }

func (c *Config) MaskAccounts() bool { return c != nil && boolOr(c.Log.MaskAccounts, true) }

func (c *Config) Headless() bool { return c != nil && boolOr(c.Browser.Headless, true) }

func (c *Config) ShapeChallengeEnabled() bool {
	return c != nil && boolOr(c.Login.ShapeChallenge, true)
}

func (c *Config) RefreshAllWhenEmpty() bool {
	return c != nil && boolOr(c.Refresh.RefreshAllWhenEmpty, true)
}

func (c *Config) NotifyOnSuccess() bool { return c != nil && boolOr(c.Notify.OnSuccess, true) }

func (c *Config) NotifyOnFailure() bool { return c != nil && boolOr(c.Notify.OnFailure, true) }

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
