package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/idx"
	"github.com/aussiebroadwan/gate/pkg/limiter"
	"github.com/aussiebroadwan/gate/pkg/mailx"
	"github.com/aussiebroadwan/gate/pkg/passwordx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// AttemptLimit bounds failed attempts per client for one action.
type AttemptLimit struct {
	Max    int
	Window time.Duration
}

var (
	DefaultLoginLimit    = AttemptLimit{Max: 5, Window: 15 * time.Minute}
	DefaultRegisterLimit = AttemptLimit{Max: 3, Window: 30 * time.Minute}
)

const DefaultResetTTL = time.Hour

// AuthService runs the registration, login and password reset flows. CSRF
// is enforced by the HTTP layer before any of these methods run.
type AuthService struct {
	Store   store.Store
	Tokens  *TokenService
	Limiter limiter.Limiter
	Breach  passwordx.BreachChecker
	Policy  passwordx.Policy
	Mailer  mailx.Mailer

	LoginLimit    AttemptLimit
	RegisterLimit AttemptLimit

	ResetTTL time.Duration
	ResetURL string // the reset token is appended as ?token=

	Now func() time.Time
}

type RegisterInput struct {
	Username        string `validate:"required,min=3,max=20,username"`
	Email           string `validate:"required,max=254,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"eqfield=Password"`
	InviteKey       string `validate:"required"`
	ClientIP        string
}

type LoginInput struct {
	Identifier string // username or email
	Password   string
	ClientIP   string
}

// AuthResult is returned by Register and Login. Token is the raw API token.
type AuthResult struct {
	User             domain.User
	Token            string
	PasswordBreached bool
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Register creates an account gated by an invite key. Checks run in a fixed
// order: attempt limit, input, invite key, breach list, uniqueness. The
// invite is consumed in the same transaction as the user and token inserts,
// so a failed insert never burns a use.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	log := slogx.FromContext(ctx)
	key := limiter.Key(limiter.ActionRegister, in.ClientIP)

	if err := s.checkLimit(ctx, key, s.RegisterLimit); err != nil {
		return AuthResult{}, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.InviteKey = NormalizeInviteKey(in.InviteKey)

	reasons, err := s.validateRegistration(in)
	if err != nil {
		return AuthResult{}, err
	}
	if in.InviteKey != "" {
		reason, err := s.precheckInvite(ctx, in.InviteKey)
		if err != nil {
			log.Error("failed to look up invite key", slog.Any("error", err))
			return AuthResult{}, err
		}
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) > 0 {
		s.recordFailure(ctx, key, s.RegisterLimit)
		return AuthResult{}, &ValidationError{Reason: strings.Join(reasons, " ")}
	}

	if s.Breach.IsBreached(ctx, in.Password) {
		s.recordFailure(ctx, key, s.RegisterLimit)
		return AuthResult{}, ErrPasswordBreached
	}

	taken, err := s.Store.Users().UsernameOrEmailTaken(ctx, in.Username, in.Email)
	if err != nil {
		log.Error("failed to check username availability", slog.Any("error", err))
		return AuthResult{}, err
	}
	if taken {
		return AuthResult{}, ErrAccountTaken
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return AuthResult{}, err
	}

	now := s.now()
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var token string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InviteKeys().ConsumeInviteKey(ctx, in.InviteKey); err != nil {
			return err
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		token, err = s.Tokens.Issue(ctx, tx.APITokens(), user.ID)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return AuthResult{}, &ValidationError{Reason: "Invalid invite key."}
	case errors.Is(err, store.ErrExhausted):
		log.Warn("invite key exhausted during registration", slogx.Prefix("invite_prefix", in.InviteKey, invitePrefixLen))
		return AuthResult{}, ErrInviteExhausted
	case errors.Is(err, store.ErrAlreadyExists):
		return AuthResult{}, ErrAccountTaken
	default:
		log.Error("failed to register user", slog.String("username", in.Username), slog.Any("error", err))
		return AuthResult{}, err
	}

	s.clearLimit(ctx, key)

	log.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slogx.Prefix("invite_prefix", in.InviteKey, invitePrefixLen),
	)
	return AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) validateRegistration(in RegisterInput) ([]string, error) {
	failed, err := fieldErrors(in)
	if err != nil {
		return nil, err
	}

	var reasons []string
	for _, fe := range failed {
		if fe.Tag() == "required" {
			reasons = append(reasons, "Please fill in all fields.")
			break
		}
	}
	if fe, ok := failed["Username"]; ok && fe.Tag() != "required" {
		reasons = append(reasons, "Username must be 3-20 characters using letters, numbers and underscores.")
	}
	if fe, ok := failed["Email"]; ok && fe.Tag() != "required" {
		reasons = append(reasons, "Please enter a valid email address.")
	}
	if in.Password != "" {
		if err := s.Policy.Validate(in.Password); err != nil {
			reasons = append(reasons, policyReason(err))
		}
	}
	if _, ok := failed["ConfirmPassword"]; ok {
		reasons = append(reasons, "Passwords do not match.")
	}
	return reasons, nil
}

// precheckInvite is the read-only invite check that gives an early, friendly
// error. The authoritative check is the atomic consume.
func (s *AuthService) precheckInvite(ctx context.Context, key string) (string, error) {
	k, err := s.Store.InviteKeys().GetInviteKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Invalid invite key.", nil
	case err != nil:
		return "", err
	case k.Exhausted():
		return "Invite key has no remaining uses.", nil
	}
	return "", nil
}

// Login verifies a username-or-email and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials after similar work.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	log := slogx.FromContext(ctx)
	key := limiter.Key(limiter.ActionLogin, in.ClientIP)

	if err := s.checkLimit(ctx, key, s.LoginLimit); err != nil {
		return AuthResult{}, err
	}

	in.Identifier = strings.TrimSpace(in.Identifier)
	if in.Identifier == "" || in.Password == "" {
		return AuthResult{}, &ValidationError{Reason: "Please fill in both fields."}
	}

	// Advisory only: a breached password still logs in.
	breached := s.Breach.IsBreached(ctx, in.Password)

	user, err := s.Store.Users().GetUserByIdentifier(ctx, in.Identifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to look up user", slog.Any("error", err))
			return AuthResult{}, err
		}
		cryptox.EqualizeTiming(in.Password)
		s.recordFailure(ctx, key, s.LoginLimit)
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(in.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Warn("stored password hash could not be verified",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		s.recordFailure(ctx, key, s.LoginLimit)
		return AuthResult{}, ErrInvalidCredentials
	}

	if cryptox.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, in.Password)
	}

	s.clearLimit(ctx, key)

	token, err := s.Tokens.Issue(ctx, s.Store.APITokens(), user.ID)
	if err != nil {
		log.Error("failed to issue api token", slog.String("user_id", user.ID), slog.Any("error", err))
		return AuthResult{}, err
	}

	log.Info("user logged in", slog.String("user_id", user.ID), slog.Bool("password_breached", breached))
	return AuthResult{User: user, Token: token, PasswordBreached: breached}, nil
}

// rehash upgrades a legacy or outdated hash after a successful login.
// Failure is logged and the login proceeds.
func (s *AuthService) rehash(ctx context.Context, user domain.User, password string) {
	log := slogx.FromContext(ctx)
	hash, err := cryptox.HashPassword(password)
	if err == nil {
		err = s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		log.Warn("failed to upgrade password hash", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	log.Info("upgraded password hash", slog.String("user_id", user.ID))
}

// ForgotPassword mails a reset link when the identifier matches a user. It
// returns nil for unknown users and for mail failures so the response never
// reveals whether an account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, identifier string) error {
	log := slogx.FromContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return &ValidationError{Reason: "Please provide your email or username."}
	}

	user, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("password reset requested for unknown identifier")
		return nil
	}
	if err != nil {
		log.Error("failed to look up user", slog.Any("error", err))
		return err
	}

	raw, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	if err := s.Store.Users().SetResetToken(ctx, user.ID, cryptox.HashToken(raw), s.now().Add(ttl)); err != nil {
		log.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}

	link := resetLink(s.ResetURL, raw)
	msg := mailx.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Text: fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n\n"+
			"If you did not ask for this, ignore this email.\n", user.Username, ttl, link),
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		log.Warn("failed to send reset email", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	log.Info("password reset email sent", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword replaces the password for the user holding a live reset
// token and revokes that user's API tokens. An expired token changes nothing.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" || password == "" || confirm == "" {
		return domain.User{}, &ValidationError{Reason: "Please fill in all fields."}
	}
	if password != confirm {
		return domain.User{}, &ValidationError{Reason: "Passwords do not match."}
	}
	if err := s.Policy.Validate(password); err != nil {
		return domain.User{}, &ValidationError{Reason: policyReason(err)}
	}
	if s.Breach.IsBreached(ctx, password) {
		return domain.User{}, ErrPasswordBreached
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return domain.User{}, err
	}

	var (
		user    domain.User
		revoked int64
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.Users().ConsumeResetToken(ctx, cryptox.HashToken(token), hash, s.now())
		if err != nil {
			return err
		}
		revoked, err = tx.APITokens().RevokeAllAPITokens(ctx, user.ID)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrResetTokenInvalid
	case errors.Is(err, store.ErrExpired):
		return domain.User{}, ErrResetTokenExpired
	default:
		log.Error("failed to reset password", slog.Any("error", err))
		return domain.User{}, err
	}

	log.Info("password reset", slog.String("user_id", user.ID), slog.Int64("tokens_revoked", revoked))
	return user, nil
}

// ValidateToken resolves a raw API token to its owner.
func (s *AuthService) ValidateToken(ctx context.Context, raw string) (domain.User, error) {
	return s.Tokens.Validate(ctx, raw)
}

// ValidateBearer implements httpx.TokenValidator.
func (s *AuthService) ValidateBearer(ctx context.Context, raw string) (httpx.Principal, error) {
	u, err := s.Tokens.Validate(ctx, raw)
	if err != nil {
		return httpx.Principal{}, err
	}
	return httpx.Principal{UserID: u.ID, Username: u.Username}, nil
}

// checkLimit runs before any store access. A limiter backend failure lets
// the request through.
func (s *AuthService) checkLimit(ctx context.Context, key string, lim AttemptLimit) error {
	res, err := s.Limiter.Check(ctx, key, lim.Max, lim.Window)
	if err != nil {
		slogx.FromContext(ctx).Warn("attempt limiter unavailable, allowing request", slog.Any("error", err))
		return nil
	}
	if !res.Allowed {
		slogx.FromContext(ctx).Warn("attempt limit reached",
			slog.String("key", key),
			slog.Int("count", res.Count),
			slog.Duration("retry_after", res.RetryAfter),
		)
		return &RateLimitError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, key string, lim AttemptLimit) {
	if _, err := s.Limiter.Increment(ctx, key, lim.Window); err != nil {
		slogx.FromContext(ctx).Warn("failed to record attempt", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *AuthService) clearLimit(ctx context.Context, key string) {
	if err := s.Limiter.Clear(ctx, key); err != nil {
		slogx.FromContext(ctx).Warn("failed to clear attempts", slog.String("key", key), slog.Any("error", err))
	}
}

func policyReason(err error) string {
	var pe *passwordx.PolicyError
	if errors.As(err, &pe) {
		return "Password " + pe.Reason + "."
	}
	return "Password does not meet the requirements."
}

func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return token
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
