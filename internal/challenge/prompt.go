package challenge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/vision"
)

// PromptKind says what a selection prompt asks for.
type PromptKind int

const (
	PromptColor PromptKind = iota + 1
	PromptShape
	PromptCharacters
)

func (k PromptKind) String() string {
	switch k {
	case PromptColor:
		return "color"
	case PromptShape:
		return "shape"
	case PromptCharacters:
		return "characters"
	}
	return "unknown"
}

// Prompt is a parsed selection instruction.
type Prompt struct {
	Kind  PromptKind
	Color string
	Shape vision.Shape
	Chars []rune
	Raw   string
}

// orderedCharCount is how many characters an ordered challenge asks for.
const orderedCharCount = 4

var (
	hanRun = regexp.MustCompile(`\p{Han}+`)

	// longest first so 圆环 wins over 圆
	shapeNames = []string{"三角形", "正方形", "长方形", "五角星", "六边形", "圆环", "环形", "梯形", "圆形", "矩形", "星形"}
	colorNames = []string{"紫色", "灰色", "粉色", "蓝色", "绿色", "橙色", "黄色", "红色"}
)

// ParsePrompt reads instructions such as "请选出图中蓝色的图形",
// "请选出图中的五角星" or "请依次点击：安 全 验 证".
func ParsePrompt(text string) (Prompt, error) {
	raw := strings.TrimSpace(text)
	pr := Prompt{Raw: raw}
	if raw == "" {
		return pr, fmt.Errorf("%w: empty prompt", ErrLowConfidence)
	}

	if strings.Contains(raw, "依次") {
		runs := hanRun.FindAllString(raw, -1)
		var chars []rune
		for _, r := range runs[1:] {
			chars = append(chars, []rune(r)...)
		}
		if len(chars) < orderedCharCount {
			return pr, fmt.Errorf("%w: prompt %q names %d characters", ErrLowConfidence, raw, len(chars))
		}
		pr.Kind = PromptCharacters
		pr.Chars = chars[:orderedCharCount]
		return pr, nil
	}

	if strings.Contains(raw, "色") {
		target := between(raw, "请选出图中", "的图形")
		if c, ok := vision.CanonicalColor(target); ok {
			pr.Kind, pr.Color = PromptColor, c
			return pr, nil
		}
		for _, name := range colorNames {
			if strings.Contains(raw, name) {
				c, _ := vision.CanonicalColor(name)
				pr.Kind, pr.Color = PromptColor, c
				return pr, nil
			}
		}
		return pr, fmt.Errorf("%w: unknown color in %q", vision.ErrUnsupported, raw)
	}

	target := strings.Trim(after(raw, "请选出图中的"), " 。.!！")
	if s, ok := vision.ParseShape(target); ok {
		pr.Kind, pr.Shape = PromptShape, s
		return pr, nil
	}
	for _, name := range shapeNames {
		if strings.Contains(raw, name) {
			s, _ := vision.ParseShape(name)
			pr.Kind, pr.Shape = PromptShape, s
			return pr, nil
		}
	}
	return pr, fmt.Errorf("%w: unknown shape in %q", vision.ErrUnsupported, raw)
}

func between(s, start, end string) string {
	rest := after(s, start)
	if i := strings.Index(rest, end); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func after(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return s
}

// PromptReader extracts the instruction text of a selection challenge.
type PromptReader interface {
	ReadPrompt(ctx context.Context, p page.Page, selector string) (string, error)
}

// DOMPrompt reads the prompt from the element's text, alt or title.
type DOMPrompt struct{}

func (DOMPrompt) ReadPrompt(ctx context.Context, p page.Page, selector string) (string, error) {
	if txt, err := p.Text(ctx, selector); err == nil && strings.TrimSpace(txt) != "" {
		return strings.TrimSpace(txt), nil
	}
	for _, attr := range []string{"alt", "title"} {
		if v, err := p.Attribute(ctx, selector, attr); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("%w: no prompt text at %s", ErrLowConfidence, selector)
}

// OCRPrompt posts a screenshot of the prompt element to an OCR endpoint.
// The endpoint answers plain text or JSON with a text, result or data.text field.
type OCRPrompt struct {
	URL    string
	Client *http.Client
}

func (o OCRPrompt) ReadPrompt(ctx context.Context, p page.Page, selector string) (string, error) {
	shot, err := p.Screenshot(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("screenshot prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(shot))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/png")
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr endpoint returned %d", resp.StatusCode)
	}
	text := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		text = ""
		for _, path := range []string{"text", "result", "data.text"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				text = strings.TrimSpace(v.Str)
				break
			}
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: ocr returned no text", ErrLowConfidence)
	}
	return text, nil
}

// PromptChain tries readers in order and returns the first prompt that parses.
type PromptChain []PromptReader

func (c PromptChain) ReadPrompt(ctx context.Context, p page.Page, selector string) (string, error) {
	var errs []error
	for _, r := range c {
		txt, err := r.ReadPrompt(ctx, p, selector)
		if err == nil {
			if _, err = ParsePrompt(txt); err == nil {
				return txt, nil
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no prompt readers", ErrLowConfidence)
	}
	return "", errors.Join(errs...)
}

// NewPromptReader reads the DOM first and falls back to OCR when an
// endpoint is configured.
func NewPromptReader(ocrURL string) PromptReader {
	chain := PromptChain{DOMPrompt{}}
	if strings.TrimSpace(ocrURL) != "" {
		chain = append(chain, OCRPrompt{URL: ocrURL})
	}
	return chain
}
