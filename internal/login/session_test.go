package login

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/challenge"
	"sessionkeeper-go/internal/config"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/otp"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/page/pagetest"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type codeStub struct {
	mu   sync.Mutex
	code string
	err  error
	reqs []otp.Request
}

func (c *codeStub) Acquire(_ context.Context, req otp.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.code, c.err
}

type solverStub struct {
	res   challenge.Result
	err   error
	calls int
}

func (s *solverStub) Solve(context.Context, page.Page) (challenge.Result, error) {
	s.calls++
	return s.res, s.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Login.TokenNames = []string{"t1", "t2"}
	cfg.Login.RequiredTokens = []string{"t1"}
	return cfg
}

func landed(cfg *config.Config, cookies ...page.Cookie) *pagetest.Page {
	p := pagetest.New()
	p.Show(cfg.Login.Selectors.Landing)
	p.CookieJar = cookies
	return p
}

func alice() account.Account {
	return account.Account{Username: "alice", Password: "s3cret", Phone: "13800000000", Enabled: true, Kind: account.KindStandard, Enterprise: "jd"}
}

func TestSessionSucceedsWithoutChallengeOrCode(t *testing.T) {
	cfg := testConfig()
	codes := &codeStub{code: "123456"}
	b := NewBuilder(cfg, codes, nil).WithOptions(Options{Sleep: noSleep}, challenge.Options{Sleep: noSleep})
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"}, page.Cookie{Name: "t2", Value: "b"}, page.Cookie{Name: "other", Value: "x"})

	s := b.Session(alice())
	res, err := s.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Success, res.State)
	require.Equal(t, map[string]string{"t1": "a", "t2": "b"}, res.Tokens)
	require.Empty(t, res.Missing)

	require.Empty(t, codes.reqs)
	require.Zero(t, p.Count("drag"))
	require.Zero(t, p.Count("clickat"))
	require.Zero(t, p.Count("screenshot"))
	require.Equal(t, "alice", p.Value(cfg.Login.Selectors.Username))
	require.Equal(t, "s3cret", p.Value(cfg.Login.Selectors.Password))
	require.Equal(t, []State{Start, CredentialsEntered, ChallengeGate, NoticeCheck, AwaitingToken, Success}, s.Trace())
}

func TestSessionClassifiesNotices(t *testing.T) {
	cases := []struct {
		name   string
		sel    func(config.SelectorsConfig) string
		text   string
		class  apperrors.Classification
		banned bool
	}{
		{"password mismatch", func(s config.SelectorsConfig) string { return s.NoticeError }, "账号名与密码不匹配，请重新输入", apperrors.PasswordError, false},
		{"risk", func(s config.SelectorsConfig) string { return s.NoticeError }, "您的账号存在风险", apperrors.Banned, true},
		{"tip title", func(s config.SelectorsConfig) string { return s.NoticeTip }, "登录环境异常", apperrors.UnknownNotice, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
			sel := tc.sel(cfg.Login.Selectors)
			p.Show(sel)
			p.Texts[sel] = tc.text

			s := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep})
			res, err := s.Run(context.Background(), p)
			require.Error(t, err)
			require.Equal(t, Failed, res.State)
			require.Equal(t, apperrors.KindNoticeRejected, res.Reason())
			class, ok := apperrors.ClassificationOf(err)
			require.True(t, ok)
			require.Equal(t, tc.class, class)
			require.Equal(t, !tc.banned, apperrors.Recoverable(err))
			require.Equal(t, tc.text, res.Notice)
			require.Zero(t, p.Count("cookies"))
		})
	}
}

func TestSessionIgnoresIdentityPrompt(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	p.Show(cfg.Login.Selectors.NoticeTip)
	p.Texts[cfg.Login.Selectors.NoticeTip] = identityPrompt

	res, err := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Success, res.State)
	require.Equal(t, []string{"t2"}, res.Missing)
}

func TestSessionSMSGate(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Login.Selectors
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	p.Body = "请完成验证 " + sel.SMSEntryText
	p.Show(sel.SMSEntry, sel.SMSInput)

	acct := alice()
	acct.CodeMode = "webhook"
	acct.WebhookURL = "http://codes.local/{phone}"
	codes := &codeStub{code: "654321"}

	s := NewSession(cfg, acct, nil, codes, Options{Sleep: noSleep})
	res, err := s.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Success, res.State)
	require.Contains(t, s.Trace(), CodeGate)

	require.Len(t, codes.reqs, 1)
	req := codes.reqs[0]
	require.Equal(t, otp.ChannelSMS, req.Channel)
	require.Equal(t, otp.ModeWebhook, req.Mode)
	require.Equal(t, "13800000000", req.Phone)
	require.Equal(t, "jd", req.Enterprise)
	require.Equal(t, acct.WebhookURL, req.WebhookURL)

	require.Equal(t, "654321", p.Value(sel.SMSCodeField))
	require.Equal(t, 1, p.Count("click "+sel.SMSEntry))
	require.Equal(t, 1, p.Count("click "+sel.SMSSend))
	require.Equal(t, 1, p.Count("click "+sel.SMSSubmit))
}

func TestSessionSMSGateNotTriggered(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	p.Body = cfg.Login.Selectors.SMSEntryText
	codes := &codeStub{code: "654321"}

	s := NewSession(cfg, alice(), nil, codes, Options{Sleep: noSleep})
	_, err := s.Run(context.Background(), p)
	require.NoError(t, err)
	require.Empty(t, codes.reqs)
	require.NotContains(t, s.Trace(), CodeGate)
}

func TestSessionCodeTimeoutFails(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Login.Selectors
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	p.Body = sel.SMSEntryText
	p.Show(sel.SMSInput)
	codes := &codeStub{err: apperrors.CodeTimeout("manual")}

	res, err := NewSession(cfg, alice(), nil, codes, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, Failed, res.State)
	require.Equal(t, apperrors.KindCodeTimeout, res.Reason())
	require.True(t, apperrors.Recoverable(err))
	require.Empty(t, p.Value(sel.SMSCodeField))
	require.Zero(t, p.Count("wait "+sel.Landing))
}

func TestSessionVoiceGate(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Login.Selectors

	t.Run("cron store relay", func(t *testing.T) {
		p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
		p.Body = sel.VoiceHeaderText
		p.Show(sel.VoiceCodeField)
		store := &codeStub{code: "112233"}
		codes := &otp.Selector{Default: otp.ModeManual, Cron: true, Format: otp.DefaultFormat, Store: store}

		acct := alice()
		acct.VoiceMode = "manual"
		res, err := NewSession(cfg, acct, nil, codes, Options{Sleep: noSleep}).Run(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, Success, res.State)
		require.Len(t, store.reqs, 1)
		require.Equal(t, otp.ChannelVoice, store.reqs[0].Channel)
		require.Equal(t, "112233", p.Value(sel.VoiceCodeField))
		require.Equal(t, 1, p.Count("click "+sel.VoiceSubmit))
	})

	t.Run("voice disabled by default", func(t *testing.T) {
		p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
		p.Body = sel.VoiceHeaderText
		p.Show(sel.VoiceCodeField)
		codes := &otp.Selector{Default: otp.ModeManual, Format: otp.DefaultFormat, Manual: &codeStub{code: "112233"}}

		res, err := NewSession(cfg, alice(), nil, codes, Options{Sleep: noSleep}).Run(context.Background(), p)
		require.Error(t, err)
		require.Equal(t, Failed, res.State)
		require.Equal(t, apperrors.KindCodeSource, res.Reason())
	})
}

func TestSessionIncompleteTokens(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg, page.Cookie{Name: "t2", Value: "b"})

	res, err := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, Failed, res.State)
	require.Equal(t, apperrors.KindIncompleteToken, res.Reason())
	require.Equal(t, map[string]string{"t2": "b"}, res.Tokens)
	require.Equal(t, []string{"t1"}, res.Missing)
}

func TestSessionLandingNeverReached(t *testing.T) {
	cfg := testConfig()
	p := pagetest.New()

	res, err := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, apperrors.KindPage, res.Reason())
	require.Zero(t, p.Count("cookies"))
}

func TestSessionAbandonedChallengeFails(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	slider := &solverStub{
		res: challenge.Result{Kind: challenge.KindSlider, State: challenge.Abandoned, Triggered: true, Attempts: 5},
		err: apperrors.ChallengeAbandoned(5),
	}
	after := &solverStub{}

	res, err := NewSession(cfg, alice(), []Solver{slider, after}, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, Failed, res.State)
	require.Equal(t, apperrors.KindChallengeAbandoned, res.Reason())
	require.True(t, apperrors.Recoverable(err))
	require.Equal(t, 1, slider.calls)
	require.Zero(t, after.calls)
}

func TestSessionFederated(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Login.Selectors

	setup := func(style, verify string) (*pagetest.Page, *pagetest.Page) {
		p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
		p.Show(sel.FederatedFrame)
		frame := pagetest.New()
		if style != "" {
			frame.Attrs[sel.FederatedVerify] = map[string]string{"style": style}
			frame.Texts[sel.FederatedVerify] = verify
		}
		p.Frames[sel.FederatedFrame] = frame
		return p, frame
	}
	acct := alice()
	acct.Kind = account.KindFederated
	acct.Username = "10001"

	t.Run("success", func(t *testing.T) {
		p, frame := setup("", "")
		res, err := NewSession(cfg, acct, nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, Success, res.State)
		require.Equal(t, 1, p.Count("click "+sel.FederatedEntry))
		require.Zero(t, p.Count("clicktext"))
		require.Equal(t, "10001", frame.Value(sel.FederatedUser))
		require.Equal(t, "s3cret", frame.Value(sel.FederatedPass))
		require.Equal(t, 1, frame.Count("click "+sel.FederatedSwitch))
		require.Equal(t, 1, frame.Count("click "+sel.FederatedSubmit))
	})

	t.Run("hidden verify area", func(t *testing.T) {
		p, _ := setup("display: none;", federatedVerifyText)
		_, err := NewSession(cfg, acct, nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
		require.NoError(t, err)
	})

	t.Run("security check", func(t *testing.T) {
		p, _ := setup("display: block;", "安全验证 拖动下方滑块完成拼图")
		res, err := NewSession(cfg, acct, nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
		require.Error(t, err)
		require.Equal(t, apperrors.KindChallengeAbandoned, res.Reason())
		require.Zero(t, p.Count("cookies"))
	})
}

func TestSessionCanceled(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg, page.Cookie{Name: "t1", Value: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep}).Run(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Failed, res.State)
	require.Equal(t, apperrors.KindCanceled, res.Reason())
}

func TestSessionPageErrorIsWrapped(t *testing.T) {
	cfg := testConfig()
	p := landed(cfg)
	boom := errors.New("boom")
	p.Errs["click "+cfg.Login.Selectors.Submit] = boom

	_, err := NewSession(cfg, alice(), nil, nil, Options{Sleep: noSleep}).Run(context.Background(), p)
	require.ErrorIs(t, err, boom)
	require.Equal(t, apperrors.KindPage, apperrors.KindOf(err))
}

func TestClassify(t *testing.T) {
	require.Equal(t, apperrors.PasswordError, Classify("账号名与密码不匹配"))
	require.Equal(t, apperrors.Banned, Classify("账号存在风险，已被限制登录"))
	require.Equal(t, apperrors.UnknownNotice, Classify("系统繁忙"))
}

func TestExtractTokens(t *testing.T) {
	cookies := []page.Cookie{{Name: "pin", Value: "p"}, {Name: "flash", Value: ""}, {Name: "pin", Value: "p2"}, {Name: "x", Value: "y"}}
	tokens, missing := ExtractTokens(cookies, config.DefaultRequiredTokens)
	require.Equal(t, map[string]string{"pin": "p2"}, tokens)
	require.Equal(t, []string{"3AB9D23F7A4B3CSS", "flash"}, missing)
	require.Equal(t, []string{"3AB9D23F7A4B3CSS", "flash"}, MissingRequired(tokens, config.DefaultRequiredTokens))
}
