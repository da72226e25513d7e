package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/config"
)

func checkerFor(t *testing.T, h http.HandlerFunc) (*HTTPValidityChecker, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Refresh.ValidityURL = srv.URL + "/index.html"
	cfg.Refresh.ValidityInterval = 0
	return NewHTTPValidityChecker(cfg, srv.Client()), &hits
}

func cred(user string) Credential {
	return Credential{Username: user, Tokens: map[string]string{"pin": user, "flash": "f"}}
}

func TestValidityCheckerVerdicts(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		valid   bool
	}{
		{"logged in", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>我的京东 你好 pin</html>"))
		}, true},
		{"login prompt", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<a class="link-login"><span>你好，</span><span class="style-red">请登录</span></a>`))
		}, false},
		{"welcome login", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("欢迎登录"))
		}, false},
		{"passport redirect", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://passport.jd.com/new/login.aspx", http.StatusFound)
		}, false},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := checkerFor(t, tc.handler)
			v := c.Check(context.Background(), cred("alice"))
			require.Equal(t, tc.valid, v.Valid, v.Reason)
			require.Equal(t, "alice", v.Username)
			if !tc.valid {
				require.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestValidityCheckerSendsCookies(t *testing.T) {
	var cookie, ua string
	c, _ := checkerFor(t, func(w http.ResponseWriter, r *http.Request) {
		cookie, ua = r.Header.Get("Cookie"), r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	})
	require.True(t, c.Check(context.Background(), cred("alice")).Valid)
	require.Equal(t, "pin=alice; flash=f", cookie)
	require.Equal(t, config.DefaultUserAgent, ua)
}

func TestValidityCheckerCachesPositiveOnly(t *testing.T) {
	valid := int32(1)
	c, hits := checkerFor(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&valid) == 1 {
			_, _ = w.Write([]byte("ok"))
			return
		}
		_, _ = w.Write([]byte("请登录"))
	})
	ctx := context.Background()

	require.True(t, c.Check(ctx, cred("alice")).Valid)
	v := c.Check(ctx, cred("alice"))
	require.True(t, v.Valid)
	require.True(t, v.Cached)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))

	atomic.StoreInt32(&valid, 0)
	require.False(t, c.Check(ctx, cred("bob")).Valid)
	require.False(t, c.Check(ctx, cred("bob")).Valid)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestValidityCheckerFailsSafe(t *testing.T) {
	cfg := config.Default()
	cfg.Refresh.ValidityURL = "http://127.0.0.1:1/unreachable"
	cfg.Refresh.ValidityInterval = 0
	c := NewHTTPValidityChecker(cfg, &http.Client{Timeout: time.Second})
	v := c.Check(context.Background(), cred("alice"))
	require.False(t, v.Valid)
	require.NotEmpty(t, v.Reason)

	require.False(t, c.Check(context.Background(), Credential{Username: "empty"}).Valid)
}

func TestCheckAll(t *testing.T) {
	c, hits := checkerFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "pin=bob; flash=f" {
			_, _ = w.Write([]byte("请登录"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	creds := map[string]Credential{"alice": cred("alice"), "bob": cred("bob"), "carol": cred("carol")}
	got, err := CheckAll(context.Background(), c, creds, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got["alice"].Valid)
	require.False(t, got["bob"].Valid)
	require.True(t, got["carol"].Valid)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CheckAll(ctx, c, creds, 2)
	require.ErrorIs(t, err, context.Canceled)
}
