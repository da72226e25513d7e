package login

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sessionkeeper-go/internal/account"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring/tracing"
	"sessionkeeper-go/internal/otp"
	"sessionkeeper-go/internal/page"
)

// federatedVerifyText marks the security check inside the QQ frame.
const federatedVerifyText = "安全验证"

// standard enters the credentials on the password tab.
func (s *Session) standard(ctx context.Context, p page.Page) error {
	if err := p.ClickText(ctx, s.sel.PasswordTab); err != nil {
		return pageErr(ctx, err, "open password tab")
	}
	if err := p.Type(ctx, s.sel.Username, s.acct.Username, s.typeDelay); err != nil {
		return pageErr(ctx, err, "type username")
	}
	if err := p.Type(ctx, s.sel.Password, s.acct.Password, s.typeDelay); err != nil {
		return pageErr(ctx, err, "type password")
	}
	if err := p.Click(ctx, s.sel.Submit); err != nil {
		return pageErr(ctx, err, "submit credentials")
	}
	return s.settle(ctx)
}

// federated logs in through the QQ frame. A security check shown inside the
// frame cannot be solved here and fails the attempt.
func (s *Session) federated(ctx context.Context, p page.Page) error {
	if err := p.Click(ctx, s.sel.FederatedEntry); err != nil {
		return pageErr(ctx, err, "open federated login")
	}
	st, err := p.WaitForSelector(ctx, s.sel.FederatedFrame, s.cfg.Browser.NavTimeout)
	switch st {
	case page.Error:
		return pageErr(ctx, err, "await federated frame")
	case page.Absent:
		return apperrors.New(apperrors.KindPage, "federated frame %q did not load", s.sel.FederatedFrame)
	}
	frame, err := p.Frame(ctx, s.sel.FederatedFrame)
	if err != nil {
		return pageErr(ctx, err, "enter federated frame")
	}

	if err := frame.Click(ctx, s.sel.FederatedSwitch); err != nil {
		return pageErr(ctx, err, "switch to password login")
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	if err := frame.Type(ctx, s.sel.FederatedUser, s.acct.Username, s.typeDelay); err != nil {
		return pageErr(ctx, err, "type federated username")
	}
	if err := frame.Type(ctx, s.sel.FederatedPass, s.acct.Password, s.typeDelay); err != nil {
		return pageErr(ctx, err, "type federated password")
	}
	if err := frame.Click(ctx, s.sel.FederatedSubmit); err != nil {
		return pageErr(ctx, err, "submit federated credentials")
	}
	if err := s.settle(ctx); err != nil {
		return err
	}

	style, err := frame.Attribute(ctx, s.sel.FederatedVerify, "style")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// No verify area rendered at all.
		return nil
	}
	if !strings.Contains(strings.ReplaceAll(style, " ", ""), "display:block") {
		return nil
	}
	text, err := frame.Text(ctx, s.sel.FederatedVerify)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if strings.Contains(text, federatedVerifyText) {
		return apperrors.New(apperrors.KindChallengeAbandoned, "federated login requires a security check")
	}
	return nil
}

// codeGates runs the SMS gate, then the voice gate. Either may be absent.
func (s *Session) codeGates(ctx context.Context, p page.Page) error {
	sms, err := p.HasText(ctx, s.sel.SMSEntryText)
	if err != nil {
		return pageErr(ctx, err, "probe sms gate")
	}
	if sms {
		if err := s.smsGate(ctx, p); err != nil {
			return err
		}
	}
	voice, err := p.HasText(ctx, s.sel.VoiceHeaderText)
	if err != nil {
		return pageErr(ctx, err, "probe voice gate")
	}
	if voice {
		return s.voiceGate(ctx, p)
	}
	return nil
}

func (s *Session) smsGate(ctx context.Context, p page.Page) error {
	if ok, err := p.Visible(ctx, s.sel.SMSEntry); err == nil && ok {
		if err := p.Click(ctx, s.sel.SMSEntry); err != nil {
			return pageErr(ctx, err, "choose sms verification")
		}
		if err := s.settle(ctx); err != nil {
			return err
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	st, err := p.WaitForSelector(ctx, s.sel.SMSInput, s.cfg.Login.CodeGateProbe)
	switch st {
	case page.Error:
		return pageErr(ctx, err, "await sms input")
	case page.Absent:
		s.logger.Info("sms verification not triggered")
		return nil
	}
	s.enter(CodeGate)
	if err := p.Click(ctx, s.sel.SMSSend); err != nil {
		return pageErr(ctx, err, "request sms code")
	}
	code, err := s.acquire(ctx, otp.ChannelSMS, s.acct.CodeMode)
	if err != nil {
		return err
	}
	if err := p.Fill(ctx, s.sel.SMSCodeField, code); err != nil {
		return pageErr(ctx, err, "fill sms code")
	}
	if err := p.Click(ctx, s.sel.SMSSubmit); err != nil {
		return pageErr(ctx, err, "submit sms code")
	}
	return s.settle(ctx)
}

func (s *Session) voiceGate(ctx context.Context, p page.Page) error {
	st, err := p.WaitForSelector(ctx, s.sel.VoiceCodeField, s.cfg.Login.CodeGateProbe)
	switch st {
	case page.Error:
		return pageErr(ctx, err, "await voice input")
	case page.Absent:
		s.logger.Info("voice verification not triggered")
		return nil
	}
	s.enter(CodeGate)
	mode := s.acct.VoiceMode
	if mode == "" {
		mode = string(otp.ModeDisabled)
	}
	code, err := s.acquire(ctx, otp.ChannelVoice, mode)
	if err != nil {
		return err
	}
	if err := p.Fill(ctx, s.sel.VoiceCodeField, code); err != nil {
		return pageErr(ctx, err, "fill voice code")
	}
	if err := p.Click(ctx, s.sel.VoiceSubmit); err != nil {
		return pageErr(ctx, err, "submit voice code")
	}
	return s.settle(ctx)
}

func (s *Session) acquire(ctx context.Context, ch otp.Channel, mode string) (string, error) {
	if s.codes == nil {
		return "", apperrors.New(apperrors.KindCodeSource, "no code provider configured")
	}
	code, err := s.codes.Acquire(ctx, otp.Request{
		Account:    s.acct.Username,
		Phone:      s.acct.Phone,
		Enterprise: s.acct.Enterprise,
		Channel:    ch,
		Mode:       otp.Mode(mode),
		WebhookURL: s.acct.WebhookURL,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return code, nil
}

func traceAttrs(a account.Account) []trace.SpanStartOption {
	return []trace.SpanStartOption{trace.WithAttributes(
		tracing.Account(logging.Account(a.Username)),
		attribute.String("sessionkeeper.account_kind", string(a.Kind)),
	)}
}
