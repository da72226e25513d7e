package config

import "time"

const (
	ModeInteractive = "interactive"
	ModeCron        = "cron"

	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"

	DefaultEnterprise = "jd"
	DefaultLoginURL   = "https://passport.jd.com/uc/login?ltype=logout&ReturnUrl=https%3A%2F%2Fhome.jd.com%2Findex.html"
	DefaultHomeURL    = "https://home.jd.com/index.html"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"
	DefaultRedisKey   = "JD_PC_COOKIE_MAP"
	DefaultMongoDB    = "sessionkeeper"
)

// DefaultTokenNames is the cookie set captured after landing, in blob order.
var DefaultTokenNames = []string{"pin", "3AB9D23F7A4B3CSS", "flash", "__jda", "__jdu", "ipLoc-djd", "shshshfpx", "x-rp-evtoken"}

// DefaultRequiredTokens must all be present for a login to count.
var DefaultRequiredTokens = []string{"pin", "3AB9D23F7A4B3CSS", "flash"}

// DefaultSelectors mirrors the current PC passport page.
func DefaultSelectors() SelectorsConfig {
	return SelectorsConfig{
		PasswordTab:      "密码登录",
		Username:         "#loginname",
		Password:         "#nloginpwd",
		Submit:           "#loginsubmit",
		FederatedEntry:   "b.QQ-icon",
		FederatedFrame:   "#ptlogin_iframe",
		FederatedSwitch:  "#switcher_plogin",
		FederatedUser:    "#u",
		FederatedPass:    "#p",
		FederatedSubmit:  "#login_button",
		FederatedVerify:  "div#newVcodeArea",
		SliderButton:     ".JDJRV-slide-inner.JDJRV-slide-btn",
		SliderWidget:     ".JDJRV-suspend-slide",
		SliderPiece:      ".JDJRV-smallimg img",
		SliderBackground: ".JDJRV-bigimg img",
		SliderRefresh:    ".JDJRV-img-refresh",
		ShapeWidget:      "div.captcha_footer img",
		ShapeImage:       "#cpc_img",
		ShapePrompt:      "div.captcha_footer img",
		ShapeConfirm:     "div.captcha_footer button#submit-btn",
		ShapeRefresh:     ".jcap_refresh",
		SMSEntryText:     "使用 手机短信验证码",
		SMSEntry:         "button.btn-def.btn-xl.mb20",
		SMSInput:         "input.field[placeholder='请输入手机验证码']",
		SMSSend:          "button.btn-def.btn-msg.btn-l",
		SMSCodeField:     "input[type='text']",
		SMSSubmit:        "button.btn-primary.btn-m",
		VoiceHeaderText:  "手机语音验证",
		VoiceCodeField:   "#authcode",
		VoiceSubmit:      ".btn-sms-login",
		NoticeError:      ".msg-error",
		NoticeTip:        ".tip-title",
		Landing:          ".user",
	}
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	setString(&cfg.Enterprise, DefaultEnterprise)
	setString(&cfg.Mode, ModeInteractive)

	setString(&cfg.Browser.Driver, DriverChromedp)
	setString(&cfg.Browser.UserAgent, DefaultUserAgent)
	setInt(&cfg.Browser.WindowWidth, 1920)
	setInt(&cfg.Browser.WindowHeight, 1080)
	setDuration(&cfg.Browser.NavTimeout, 60*time.Second)

	setString(&cfg.Login.URL, DefaultLoginURL)
	setDuration(&cfg.Login.LandingTimeout, 120*time.Second)
	setDuration(&cfg.Login.NoticeTimeout, 3*time.Second)
	setDuration(&cfg.Login.CodeGateProbe, 5*time.Second)
	setDuration(&cfg.Login.TypeDelayMin, 100*time.Millisecond)
	setDuration(&cfg.Login.TypeDelayMax, 300*time.Millisecond)
	if len(cfg.Login.TokenNames) == 0 {
		cfg.Login.TokenNames = append([]string(nil), DefaultTokenNames...)
	}
	if len(cfg.Login.RequiredTokens) == 0 {
		cfg.Login.RequiredTokens = append([]string(nil), DefaultRequiredTokens...)
	}
	mergeSelectors(&cfg.Login.Selectors, DefaultSelectors())

	setInt(&cfg.Challenge.RetryBudget, 5)
	setDuration(&cfg.Challenge.AwaitTimeout, 5*time.Second)
	setDuration(&cfg.Challenge.DelayMin, 1*time.Second)
	setDuration(&cfg.Challenge.DelayMax, 4*time.Second)
	setInt(&cfg.Challenge.SlideDifference, 10)
	if cfg.Challenge.MinSimilarity <= 0 {
		cfg.Challenge.MinSimilarity = 0.3
	}
	setInt(&cfg.Challenge.MinColorArea, 100)
	setInt(&cfg.Challenge.BoxMargin, 10)

	setString(&cfg.Code.DefaultMode, "manual")
	setDuration(&cfg.Code.WebhookTimeout, 10*time.Second)
	setDuration(&cfg.Code.ManualTimeout, 60*time.Second)
	setDuration(&cfg.Code.PollInterval, 5*time.Second)
	setInt(&cfg.Code.PollAttempts, 20)
	setInt(&cfg.Code.Length, 6)

	if cfg.Tracing.SampleRatio <= 0 {
		cfg.Tracing.SampleRatio = 1
	}

	setInt(&cfg.Refresh.Concurrency, 1)
	setDuration(&cfg.Refresh.Interval, 6*time.Hour)
	setString(&cfg.Refresh.ValidityURL, DefaultHomeURL)
	setDuration(&cfg.Refresh.ValidityTimeout, 15*time.Second)
	setDuration(&cfg.Refresh.ValidityInterval, 1*time.Second)
	setDuration(&cfg.Refresh.ValidityCacheTTL, 10*time.Minute)

	setString(&cfg.Storage.Backend, "redis")
	setString(&cfg.Storage.Redis.Addr, "127.0.0.1:6379")
	setString(&cfg.Storage.Redis.Key, DefaultRedisKey)
	setString(&cfg.Storage.File, "data/credentials.json")
	setString(&cfg.Storage.Mongo.Database, DefaultMongoDB)

	setString(&cfg.Accounts.Backend, "file")
	setString(&cfg.Accounts.File, "accounts.yaml")
	setString(&cfg.Accounts.Mongo.Database, DefaultMongoDB)
}

func mergeSelectors(dst *SelectorsConfig, def SelectorsConfig) {
	setString(&dst.PasswordTab, def.PasswordTab)
	setString(&dst.Username, def.Username)
	setString(&dst.Password, def.Password)
	setString(&dst.Submit, def.Submit)
	setString(&dst.FederatedEntry, def.FederatedEntry)
	setString(&dst.FederatedFrame, def.FederatedFrame)
	setString(&dst.FederatedSwitch, def.FederatedSwitch)
	setString(&dst.FederatedUser, def.FederatedUser)
	setString(&dst.FederatedPass, def.FederatedPass)
	setString(&dst.FederatedSubmit, def.FederatedSubmit)
	setString(&dst.FederatedVerify, def.FederatedVerify)
	setString(&dst.SliderButton, def.SliderButton)
	setString(&dst.SliderWidget, def.SliderWidget)
	setString(&dst.SliderPiece, def.SliderPiece)
	setString(&dst.SliderBackground, def.SliderBackground)
	setString(&dst.SliderRefresh, def.SliderRefresh)
	setString(&dst.ShapeWidget, def.ShapeWidget)
	setString(&dst.ShapeImage, def.ShapeImage)
	setString(&dst.ShapePrompt, def.ShapePrompt)
	setString(&dst.ShapeConfirm, def.ShapeConfirm)
	setString(&dst.ShapeRefresh, def.ShapeRefresh)
	setString(&dst.SMSEntryText, def.SMSEntryText)
	setString(&dst.SMSEntry, def.SMSEntry)
	setString(&dst.SMSInput, def.SMSInput)
	setString(&dst.SMSSend, def.SMSSend)
	setString(&dst.SMSCodeField, def.SMSCodeField)
	setString(&dst.SMSSubmit, def.SMSSubmit)
	setString(&dst.VoiceHeaderText, def.VoiceHeaderText)
	setString(&dst.VoiceCodeField, def.VoiceCodeField)
	setString(&dst.VoiceSubmit, def.VoiceSubmit)
	setString(&dst.NoticeError, def.NoticeError)
	setString(&dst.NoticeTip, def.NoticeTip)
	setString(&dst.Landing, def.Landing)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}
