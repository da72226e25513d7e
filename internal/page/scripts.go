package page

import (
	"encoding/json"
	"fmt"
)

// jsString quotes s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func visibleScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const s = window.getComputedStyle(el);
	const r = el.getBoundingClientRect();
	return s.display !== 'none' && s.visibility !== 'hidden' && r.width > 0 && r.height > 0;
})()`, jsString(selector))
}

func textScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el ? (el.innerText || el.textContent || '') : null;
})()`, jsString(selector))
}

func attributeScript(selector, name string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el ? el.getAttribute(%s) : null;
})()`, jsString(selector), jsString(name))
}

func boxScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`, jsString(selector))
}

func hasTextScript(text string) string {
	return fmt.Sprintf(`(() => !!document.body && document.body.innerText.includes(%s))()`, jsString(text))
}

func textXPath(text string) string {
	b, _ := json.Marshal(text)
	return fmt.Sprintf(`//*[normalize-space(text())=%s]`, string(b))
}

type jsRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
