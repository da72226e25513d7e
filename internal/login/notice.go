package login

import (
	"context"
	"strings"

	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/page"
)

const (
	passwordMismatch = "账号名与密码不匹配"
	riskMarker       = "风险"
	// identityPrompt heads the verification method picker, which is not a rejection.
	identityPrompt = "为确认是您本人操作，请选择以下任一方式进行身份认证"
)

// Classify maps a notice text to its category.
func Classify(notice string) apperrors.Classification {
	switch {
	case strings.Contains(notice, passwordMismatch):
		return apperrors.PasswordError
	case strings.Contains(notice, riskMarker):
		return apperrors.Banned
	}
	return apperrors.UnknownNotice
}

// notice returns the rejection text rendered by the page, or "" when none.
// Probe failures read as no notice; only cancellation of ctx is returned.
func (s *Session) notice(ctx context.Context, p page.Page) (string, error) {
	probe := ctx
	if s.cfg.Login.NoticeTimeout > 0 {
		var cancel context.CancelFunc
		probe, cancel = context.WithTimeout(ctx, s.cfg.Login.NoticeTimeout)
		defer cancel()
	}
	text := visibleText(probe, p, s.sel.NoticeError)
	if text == "" {
		text = visibleText(probe, p, s.sel.NoticeTip)
		if strings.Contains(text, identityPrompt) {
			text = ""
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}

func visibleText(ctx context.Context, p page.Page, selector string) string {
	if ok, err := p.Visible(ctx, selector); err != nil || !ok {
		return ""
	}
	text, err := p.Text(ctx, selector)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
