package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setStringFromEnv(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setIntFromEnv(key string, dst *int) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setDurationFromEnv accepts Go durations ("90s") or plain seconds ("90").
func setDurationFromEnv(key string, dst *time.Duration) {
	v := strings.TrimSpace(getenv(key, ""))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

func setToggleFromEnv(key string, dst **bool) {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	switch v {
	case "1", "true", "yes", "on":
		t := true
		*dst = &t
	case "0", "false", "no", "off":
		f := false
		*dst = &f
	}
}

func setBoolFromEnv(key string, dst *bool) {
	var p *bool
	setToggleFromEnv(key, &p)
	if p != nil {
		*dst = *p
	}
}

func splitAndTrim(input, sep string) []string {
	parts := strings.Split(input, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
