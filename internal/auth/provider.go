// Package auth wraps the hosted auth service (Supabase GoTrue) behind a
// message-passing boundary: every call returns at once and its outcome
// arrives later as a Result.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
)

type Kind string

const (
	KindSignedIn  Kind = "signed_in"
	KindSignedUp  Kind = "signed_up"
	KindResetSent Kind = "reset_sent"
	KindOTPSent   Kind = "otp_sent"
	KindRefreshed Kind = "refreshed"
	KindSignedOut Kind = "signed_out"
)

type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Result is the single message delivered for each call.
type Result struct {
	Kind    Kind     `json:"kind"`
	Session *Session `json:"session,omitempty"`
	Err     error    `json:"-"`
}

type Provider struct {
	baseURL string
	anonKey string
	http    *http.Client
	cache   *CredentialCache
	log     *logger.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewProvider builds a client for baseURL. cache may be nil, in which case
// sessions are not remembered across restarts.
func NewProvider(baseURL, anonKey string, cache *CredentialCache, log *logger.Logger) *Provider {
	base, stop := context.WithCancel(context.Background())
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   cache,
		log:     log,
		base:    base,
		stop:    stop,
	}
}

// Close abandons calls still in flight and waits for them to deliver.
func (p *Provider) Close() {
	p.stop()
	p.wg.Wait()
}

func (p *Provider) SignIn(email, password string) <-chan Result {
	return p.run(KindSignedIn, func(ctx context.Context) (*Session, error) {
		if err := checkEmail(email); err != nil {
			return nil, err
		}
		if password == "" {
			return nil, fmt.Errorf("%w: blank password", domain.ErrInvalidInput)
		}
		return p.session(ctx, "/auth/v1/token?grant_type=password", map[string]string{
			"email":    strings.TrimSpace(email),
			"password": password,
		})
	})
}

// SignUp registers an account. When the project requires email confirmation
// the Result carries no session.
func (p *Provider) SignUp(email, password string) <-chan Result {
	return p.run(KindSignedUp, func(ctx context.Context) (*Session, error) {
		if err := checkEmail(email); err != nil {
			return nil, err
		}
		if len(password) < 6 {
			return nil, fmt.Errorf("%w: password must be at least 6 characters", domain.ErrInvalidInput)
		}

		var resp tokenResponse
		if err := p.post(ctx, "/auth/v1/signup", "", map[string]string{
			"email":    strings.TrimSpace(email),
			"password": password,
		}, &resp); err != nil {
			return nil, err
		}
		if resp.AccessToken == "" {
			return nil, nil
		}
		s := resp.session(time.Now())
		p.remember(ctx, s)
		return &s, nil
	})
}

func (p *Provider) ResetPassword(email string) <-chan Result {
	return p.run(KindResetSent, func(ctx context.Context) (*Session, error) {
		if err := checkEmail(email); err != nil {
			return nil, err
		}
		return nil, p.post(ctx, "/auth/v1/recover", "", map[string]string{"email": strings.TrimSpace(email)}, nil)
	})
}

func (p *Provider) SendOTP(phone string) <-chan Result {
	return p.run(KindOTPSent, func(ctx context.Context) (*Session, error) {
		phone, err := normalizePhone(phone)
		if err != nil {
			return nil, err
		}
		return nil, p.post(ctx, "/auth/v1/otp", "", map[string]string{"phone": phone}, nil)
	})
}

func (p *Provider) VerifyOTP(phone, code string) <-chan Result {
	return p.run(KindSignedIn, func(ctx context.Context) (*Session, error) {
		phone, err := normalizePhone(phone)
		if err != nil {
			return nil, err
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, fmt.Errorf("%w: blank verification code", domain.ErrInvalidInput)
		}
		return p.session(ctx, "/auth/v1/verify", map[string]string{
			"type":  "sms",
			"phone": phone,
			"token": code,
		})
	})
}

func (p *Provider) Refresh(refreshToken string) <-chan Result {
	return p.run(KindRefreshed, func(ctx context.Context) (*Session, error) {
		if refreshToken == "" {
			return nil, fmt.Errorf("%w: blank refresh token", domain.ErrInvalidInput)
		}
		return p.session(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
			"refresh_token": refreshToken,
		})
	})
}

// SignOut revokes the cached session (best effort) and forgets it locally.
func (p *Provider) SignOut() <-chan Result {
	return p.run(KindSignedOut, func(ctx context.Context) (*Session, error) {
		if p.cache == nil {
			return nil, nil
		}

		s, err := p.cache.Load(ctx)
		if err == nil && s.AccessToken != "" {
			if rerr := p.post(ctx, "/auth/v1/logout", s.AccessToken, nil, nil); rerr != nil {
				p.log.Warn("Remote sign-out failed: %v", rerr)
			}
		}
		return nil, p.cache.Clear(ctx)
	})
}

// Current returns the cached session, if any. It does not touch the network.
func (p *Provider) Current(ctx context.Context) (Session, error) {
	if p.cache == nil {
		return Session{}, domain.ErrNotFound
	}
	return p.cache.Load(ctx)
}

func (p *Provider) run(kind Kind, fn func(ctx context.Context) (*Session, error)) <-chan Result {
	out := make(chan Result, 1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		s, err := fn(p.base)
		if err != nil {
			p.log.Warn("Auth %s failed: %v", kind, err)
		}
		out <- Result{Kind: kind, Session: s, Err: err}
	}()

	return out
}

func (p *Provider) session(ctx context.Context, path string, body any) (*Session, error) {
	var resp tokenResponse
	if err := p.post(ctx, path, "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", domain.ErrUnauthorized)
	}

	s := resp.session(time.Now())
	p.remember(ctx, s)
	return &s, nil
}

func (p *Provider) remember(ctx context.Context, s Session) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Save(ctx, s); err != nil {
		p.log.Error("Could not cache session: %v", err)
	}
}

func (p *Provider) post(ctx context.Context, path, bearer string, body, dst any) error {
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = p.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"user"`
}

func (t tokenResponse) session(now time.Time) Session {
	s := Session{
		UserID:       t.User.ID,
		Email:        t.User.Email,
		Phone:        t.User.Phone,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return s
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var e errorResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil {
		for _, m := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
			if m != "" {
				msg = m
				break
			}
		}
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
	default:
		return fmt.Errorf("auth service returned %d: %s", resp.StatusCode, msg)
	}
}

func checkEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: blank email", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %q is not an email address", domain.ErrInvalidInput, email)
	}
	return nil
}

// normalizePhone strips spaces, dashes and brackets and requires E.164 form.
func normalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: %q is not a phone number", domain.ErrInvalidInput, phone)
		}
	}

	out := b.String()
	if !strings.HasPrefix(out, "+") || len(out) < 8 || len(out) > 16 {
		return "", fmt.Errorf("%w: phone numbers need a country code, e.g. +15551234567", domain.ErrInvalidInput)
	}
	return out, nil
}
