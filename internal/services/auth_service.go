package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/config"
	"github.com/isdelr/skycast-be/internal/mailer"
	"github.com/isdelr/skycast-be/internal/models"
	"github.com/rs/zerolog/log"
)

const mailTimeout = 30 * time.Second

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Username      string  `json:"username" validate:"required,min=3"`
	Email         string  `json:"email" validate:"required"`
	Password      string  `json:"password" validate:"required"`
	PreferredCity *string `json:"preferredCity,omitempty"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User  models.Account `json:"user"`
	Token string         `json:"token"`
}

// AuthServiceProvider defines the interface for authentication services.
type AuthServiceProvider interface {
	Register(ctx context.Context, input RegisterInput) (AuthResult, error)
	Login(ctx context.Context, username, password string) (AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	CompletePasswordReset(ctx context.Context, token, newPassword string) (string, error)
	CompletePasswordResetDirect(ctx context.Context, username, email, newPassword string) (string, error)
}

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	Issue(accountID string) (string, error)
}

// AuthService orchestrates registration, login and password resets.
type AuthService struct {
	store    AccountStore
	tokens   TokenIssuer
	hasher   auth.PasswordHasher
	mailer   mailer.Mailer
	events   EventServiceProvider
	cfg      config.AuthConfig
	validate *validator.Validate
	now      func() time.Time
	dispatch func(mailer.Mailer, mailer.Message)
}

// NewAuthService creates a new AuthService.
func NewAuthService(store AccountStore, tokens TokenIssuer, hasher auth.PasswordHasher, m mailer.Mailer, events EventServiceProvider, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		mailer:   m,
		events:   events,
		cfg:      cfg,
		validate: newValidator(),
		now:      time.Now,
		dispatch: func(m mailer.Mailer, msg mailer.Message) { mailer.Dispatch(m, msg, mailTimeout) },
	}
}

// Register creates a new account and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Username = models.NormalizeUsername(input.Username)
	input.Email = models.NormalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return AuthResult{}, validationError(err)
	}
	if err := checkPasswordLength(input.Password); err != nil {
		return AuthResult{}, err
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, apperror.NewInternal("Failed to register user", err)
	}

	account := models.Account{
		ID:            uuid.New().String(),
		Username:      input.Username,
		Email:         input.Email,
		PasswordHash:  hashed,
		PreferredCity: normalizeCity(input.PreferredCity),
		Settings:      models.DefaultSettings(),
		CreatedAt:     s.now().UTC(),
	}

	created, err := s.store.Create(ctx, account)
	if err != nil {
		if apperror.IsDuplicateKey(err) {
			log.Info().Str("username", input.Username).Msg("Registration rejected: duplicate identity")
		}
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(created.ID)
	if err != nil {
		return AuthResult{}, apperror.NewInternal("Failed to generate token", err)
	}

	s.record(ctx, EventRegister, "info", "Account created.", &created.ID)
	log.Info().Str("account_id", created.ID).Str("username", created.Username).Msg("User registered")
	return AuthResult{User: created.Sanitized(), Token: token}, nil
}

// Login verifies credentials. Unknown usernames and wrong passwords produce
// the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	account, err := s.store.FindByUsername(ctx, username, WithPasswordHash())
	if err != nil && !apperror.IsNotFound(err) {
		return AuthResult{}, err
	}

	// Runs against a dummy hash when the account is missing.
	if cmpErr := s.hasher.Compare(account.PasswordHash, password); err != nil || cmpErr != nil {
		var accountID *string
		if account.ID != "" {
			accountID = &account.ID
		}
		s.record(ctx, EventLoginFail, "warn", "Failed login attempt.", accountID)
		log.Warn().Str("username", models.NormalizeUsername(username)).Msg("Failed authentication attempt")
		return AuthResult{}, apperror.NewInvalidCredentials()
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return AuthResult{}, apperror.NewInternal("Failed to generate token", err)
	}

	s.record(ctx, EventLogin, "info", "Logged in.", &account.ID)
	return AuthResult{User: account.Sanitized(), Token: token}, nil
}

// RequestPasswordReset stores a fresh reset token for the account and emails
// the reset link. The token itself is never returned.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if models.NormalizeEmail(email) == "" {
		return "", apperror.NewValidation("Email is required")
	}
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", apperror.NewNotFound("No account with that email address exists")
		}
		return "", err
	}

	token, hash, err := auth.GenerateResetToken()
	if err != nil {
		return "", apperror.NewInternal("Failed to create reset token", err)
	}
	expiry := s.now().Add(s.cfg.ResetTokenTTL)
	if _, err := s.store.Update(ctx, account.ID, models.AccountPatch{ResetTokenHash: &hash, ResetTokenExpiry: &expiry}); err != nil {
		return "", err
	}

	s.dispatch(s.mailer, resetMessage(account, s.resetLink(token), s.cfg.ResetTokenTTL))
	s.record(ctx, EventResetRequest, "info", "Password reset requested.", &account.ID)
	return "Password reset email sent", nil
}

// CompletePasswordReset replaces the password of the account holding token.
// The token is cleared, so it works only once.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	if newPassword == "" {
		return "", apperror.NewValidation("New password is required")
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return "", err
	}
	if token == "" {
		return "", apperror.NewInvalidOrExpiredToken()
	}

	account, err := s.store.FindByResetToken(ctx, auth.HashResetToken(token), s.now())
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", apperror.NewInvalidOrExpiredToken()
		}
		return "", err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", apperror.NewInternal("Failed to reset password", err)
	}
	if _, err := s.store.Update(ctx, account.ID, models.AccountPatch{PasswordHash: &hashed, ClearResetToken: true}); err != nil {
		return "", err
	}

	s.record(ctx, EventReset, "info", "Password reset with emailed token.", &account.ID)
	return "Password has been reset", nil
}

// CompletePasswordResetDirect replaces the password of the account matching
// both username and email. There is no proof of mailbox ownership on this
// path; it can be disabled with ALLOW_DIRECT_RESET=false.
func (s *AuthService) CompletePasswordResetDirect(ctx context.Context, username, email, newPassword string) (string, error) {
	if !s.cfg.AllowDirectReset {
		return "", apperror.NewNotFound("Direct password reset is disabled")
	}
	if models.NormalizeUsername(username) == "" || models.NormalizeEmail(email) == "" || newPassword == "" {
		return "", apperror.NewValidation("Username, email and new password are required")
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return "", err
	}

	account, err := s.store.FindByUsername(ctx, username)
	if err != nil && !apperror.IsNotFound(err) {
		return "", err
	}
	if err != nil || account.Email != models.NormalizeEmail(email) {
		return "", apperror.NewNotFound("No account matches that username and email. Please sign up.").WithRedirect("signup")
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", apperror.NewInternal("Failed to reset password", err)
	}
	if _, err := s.store.Update(ctx, account.ID, models.AccountPatch{PasswordHash: &hashed, ClearResetToken: true}); err != nil {
		return "", err
	}

	s.record(ctx, EventResetDirect, "warn", "Password reset by username and email.", &account.ID)
	log.Warn().Str("account_id", account.ID).Msg("Password reset through direct path")
	return "Password has been reset", nil
}

func (s *AuthService) resetLink(token string) string {
	u, err := url.Parse(s.cfg.ResetURLBase)
	if err != nil {
		return s.cfg.ResetURLBase + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *AuthService) record(ctx context.Context, eventType, level, message string, accountID *string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(ctx, eventType, level, message, accountID); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("Failed to record account event")
	}
}

func resetMessage(account models.Account, link string, ttl time.Duration) mailer.Message {
	return mailer.Message{
		To:      account.Email,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n\nIf you did not ask for this, you can ignore this email.\n",
			account.Username, ttl, link),
	}
}

func normalizeCity(city *string) *string {
	if city == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*city)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// bcrypt refuses longer input.
const maxPasswordBytes = 72

func checkPasswordLength(password string) error {
	if len(password) > maxPasswordBytes {
		return apperror.NewValidation("password must be at most 72 bytes")
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns validator output into a single client-facing message.
func validationError(err error) *apperror.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.NewValidation("Invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperror.NewValidation(fmt.Sprintf("%s is required", fe.Field()))
	case "min":
		return apperror.NewValidation(fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
	case "oneof":
		return apperror.NewValidation(fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
	default:
		return apperror.NewValidation(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
