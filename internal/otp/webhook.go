package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "sessionkeeper-go/internal/errors"
)

// Webhook fetches the code with a single GET. The body is either the bare
// code or a JSON object carrying it under code, data.code or data. The URL
// may contain {phone} and {username} placeholders.
type Webhook struct {
	URL    string
	Client *http.Client
	Format Format
}

func NewWebhook(defaultURL string, timeout time.Duration, format Format) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{URL: defaultURL, Client: &http.Client{Timeout: timeout}, Format: format}
}

func (w *Webhook) Acquire(ctx context.Context, req Request) (string, error) {
	target := strings.TrimSpace(req.WebhookURL)
	if target == "" {
		target = strings.TrimSpace(w.URL)
	}
	if target == "" {
		return "", apperrors.New(apperrors.KindCodeSource, "no webhook url configured")
	}
	target = strings.NewReplacer(
		"{phone}", url.QueryEscape(req.Phone),
		"{username}", url.QueryEscape(req.Account),
	).Replace(target)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindCodeSource, err, "build webhook request")
	}
	resp, err := w.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return "", apperrors.CodeTimeout(string(ModeWebhook))
		}
		return "", apperrors.Wrap(apperrors.KindCodeSource, err, "webhook request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindCodeSource, err, "read webhook body")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Wrap(apperrors.KindCodeSource, fmt.Errorf("status %d", resp.StatusCode), "webhook")
	}
	code := extractCode(body)
	if !w.Format.Valid(code) {
		return "", apperrors.CodeFormat(code)
	}
	return code, nil
}

func extractCode(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		return trimmed
	}
	for _, path := range []string{"code", "data.code", "data"} {
		v := gjson.Get(trimmed, path)
		if v.Type == gjson.String || v.Type == gjson.Number {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}
