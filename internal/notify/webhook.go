package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/sjson"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/logging"
)

// Webhook POSTs a small JSON document per outcome.
type Webhook struct {
	URL    string
	Client *http.Client
	now    func() time.Time
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{URL: url, Client: client, now: time.Now}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, acct account.Account, success bool, message string) error {
	body, err := w.payload(acct, success, message)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post notification: status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) payload(acct account.Account, success bool, message string) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, v)
		}
	}
	set("account", logging.Account(acct.Username))
	set("enterprise", acct.Enterprise)
	set("success", success)
	set("message", message)
	set("text", Subject(acct)+" "+message)
	set("at", w.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return doc, nil
}
