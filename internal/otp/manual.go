package otp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/logging"
)

// Manual asks an operator on a terminal. Prompts are serialized so
// concurrent sessions never interleave on the same terminal.
type Manual struct {
	Timeout time.Duration
	Format  Format

	in   io.Reader
	out  io.Writer
	turn chan struct{}
	once sync.Once
	rx   chan inputLine

	mu     sync.Mutex
	seq    uint64
	active uint64 // generation of the prompt on screen, 0 when idle

	discarded atomic.Int64
}

// inputLine is a line tagged with the prompt it was typed under.
type inputLine struct {
	text string
	gen  uint64
}

func NewManual(in io.Reader, out io.Writer, timeout time.Duration, format Format) *Manual {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Manual{Timeout: timeout, Format: format, in: in, out: out, turn: make(chan struct{}, 1)}
}

// lines starts the single reader goroutine. It lives until the input closes.
// Lines typed while no prompt is open are dropped so a late answer never
// reaches the next account.
func (m *Manual) lines() <-chan inputLine {
	m.once.Do(func() {
		m.rx = make(chan inputLine)
		go func() {
			defer close(m.rx)
			sc := bufio.NewScanner(m.in)
			for sc.Scan() {
				m.mu.Lock()
				gen := m.active
				m.mu.Unlock()
				if gen == 0 {
					m.discard()
					continue
				}
				m.rx <- inputLine{text: sc.Text(), gen: gen}
			}
		}()
	})
	return m.rx
}

func (m *Manual) discard() {
	m.discarded.Add(1)
	log.Debug("manual code input outside a prompt discarded")
}

func (m *Manual) open() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.active = m.seq
	return m.seq
}

func (m *Manual) closePrompt() {
	m.mu.Lock()
	m.active = 0
	m.mu.Unlock()
}

// Acquire blocks until a well-formed code is entered or Timeout elapses.
// Malformed input is rejected and the operator may retry within the same
// deadline.
func (m *Manual) Acquire(ctx context.Context, req Request) (string, error) {
	select {
	case m.turn <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-m.turn }()

	dctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	gen := m.open()
	defer m.closePrompt()
	fmt.Fprintf(m.out, "请输入 %s 的%s验证码 (%ds): ", logging.Account(req.Account), req.Channel.label(), int(m.Timeout.Seconds()))
	rx := m.lines()
	for {
		select {
		case <-dctx.Done():
			if err := ctx.Err(); err != nil {
				return "", err
			}
			fmt.Fprintln(m.out)
			return "", apperrors.CodeTimeout(string(ModeManual))
		case line, ok := <-rx:
			if !ok {
				return "", apperrors.Wrap(apperrors.KindCodeSource, io.EOF, "manual input closed")
			}
			if line.gen != gen {
				m.discard()
				continue
			}
			code := strings.TrimSpace(line.text)
			if m.Format.Valid(code) {
				return code, nil
			}
			fmt.Fprint(m.out, "验证码格式错误，请重新输入: ")
		}
	}
}
