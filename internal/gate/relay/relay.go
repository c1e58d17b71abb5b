// Package relay performs write actions against Roblox and related sites on
// behalf of a pool of stored session cookies.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gate/pkg/slogx"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4

	challengeMessage = "Challenge required - Roblox anti-bot protection detected. Try again later or use different cookies."
)

type Config struct {
	Endpoints   Endpoints
	Timeout     time.Duration // per upstream call
	Concurrency int           // credentials processed in parallel
	Transport   http.RoundTripper
}

// Relay runs actions for randomly chosen pool credentials.
type Relay struct {
	pool *Pool
	cfg  Config
}

func New(pool *Pool, cfg Config) *Relay {
	if pool == nil {
		pool = &Pool{}
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &Relay{pool: pool, cfg: cfg}
}

// Available is the pool size, malformed entries included.
func (r *Relay) Available() int { return r.pool.Len() }

// Result is the outcome for one credential. Success and AlreadyCompleted
// are exclusive; Error is set otherwise.
type Result struct {
	CookieIndex      int    `json:"cookie_index"`
	Success          bool   `json:"success"`
	AlreadyCompleted bool   `json:"already_completed,omitempty"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
}

type Batch struct {
	TotalAccountsUsed     int      `json:"total_accounts_used"`
	SuccessCount          int      `json:"success_count"`
	ErrorCount            int      `json:"error_count"`
	AlreadyCompleted      int      `json:"already_completed"`
	TotalAvailableCookies int      `json:"total_available_cookies"`
	Results               []Result `json:"results"`
}

// Run performs a for up to count credentials, at least one. Per-credential
// failures are reported in the batch; Run itself only fails when the pool
// is empty.
func (r *Relay) Run(ctx context.Context, a Action, target int64, count int) (Batch, error) {
	if r.pool.Len() == 0 {
		return Batch{}, ErrNoCookies
	}
	if count < 1 {
		count = 1
	}

	creds := r.pool.Pick(count)
	results := make([]Result, len(creds))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, cred := range creds {
		g.Go(func() error {
			results[i] = r.runOne(ctx, a, i, cred, target)
			return nil
		})
	}
	_ = g.Wait()

	b := Batch{
		TotalAccountsUsed:     len(creds),
		TotalAvailableCookies: r.pool.Len(),
		Results:               results,
	}
	for _, res := range results {
		switch {
		case res.Success:
			b.SuccessCount++
		case res.AlreadyCompleted:
			b.AlreadyCompleted++
		default:
			b.ErrorCount++
		}
	}

	slogx.FromContext(ctx).Info("relay batch completed",
		slog.String("action", a.Name),
		slog.Int64("target", target),
		slog.Int("accounts", b.TotalAccountsUsed),
		slog.Int("succeeded", b.SuccessCount),
		slog.Int("already_completed", b.AlreadyCompleted),
		slog.Int("failed", b.ErrorCount),
	)
	return b, nil
}

// runOne walks one credential through check, precheck, token, act and at
// most one retry.
func (r *Relay) runOne(ctx context.Context, a Action, idx int, cred Credential, target int64) Result {
	log := slogx.FromContext(ctx).With(slog.String("action", a.Name), slog.Int("cookie_index", idx))
	res := Result{CookieIndex: idx}

	if err := cred.Validate(); err != nil {
		log.Warn("skipping malformed cookie entry")
		res.Error = "Invalid cookie entry"
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Error = transportError(err)
		return res
	}

	s, err := newSession(cred, r.cfg.Endpoints, r.cfg.Transport, r.cfg.Timeout)
	if err != nil {
		log.Error("failed to create upstream session", slog.Any("error", err))
		res.Error = "Internal error"
		return res
	}

	if a.done != nil {
		done, err := a.done(ctx, s, target)
		if err != nil {
			log.Debug("could not determine whether action was already done", slog.Any("error", err))
		}
		if done {
			res.AlreadyCompleted = true
			res.Message = a.Already
			return res
		}
	}

	if a.exists != nil {
		if err := s.getJSON(ctx, a.exists(s, target), nil); err != nil {
			log.Warn("target precheck failed", slog.Int64("target", target), slog.Any("error", err))
			res.Error = a.Missing
			return res
		}
	}

	token := s.acquire(ctx, a.primer(s))
	req := a.act(s, target)

	rep, err := s.do(ctx, req, token)
	if err == nil && rep.status == http.StatusForbidden {
		retry := headerToken(rep)
		if retry == "" {
			retry = token
		}
		if retry != "" {
			rep, err = s.do(ctx, req, retry)
		}
	}
	if err != nil {
		log.Warn("upstream call failed", slog.Any("error", err))
		res.Error = transportError(err)
		return res
	}

	if rep.ok() {
		res.Success = true
		res.Message = a.Succeeded
		return res
	}

	res.Error = failureMessage(a, rep)
	log.Warn("upstream rejected action", slog.Int("status", rep.status))
	return res
}

func failureMessage(a Action, rep *reply) string {
	msg := upstreamMessage(rep.body)
	if rep.header.Get(headerChallenge) != "" || strings.Contains(msg, "Challenge is required") {
		return challengeMessage
	}
	if msg == "" {
		return fmt.Sprintf("%s (HTTP %d)", a.Failed, rep.status)
	}
	return msg
}

// upstreamMessage pulls a human-readable error out of the several error
// shapes the upstream sites use.
func upstreamMessage(body []byte) string {
	var e struct {
		Errors       json.RawMessage `json:"errors"`
		ErrorMessage string          `json:"errorMessage"`
		Message      string          `json:"message"`
		Error        string          `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if len(e.Errors) > 0 {
		var objs []struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Errors, &objs); err == nil && len(objs) > 0 && objs[0].Message != "" {
			return objs[0].Message
		}
		var strs []string
		if err := json.Unmarshal(e.Errors, &strs); err == nil && len(strs) > 0 && strs[0] != "" {
			return strs[0]
		}
	}
	for _, m := range []string{e.ErrorMessage, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// transportError hides URLs and other detail from the client.
func transportError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Upstream request timed out"
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	default:
		return "Upstream request failed"
	}
}
