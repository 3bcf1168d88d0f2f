package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"securesend/internal/auth"
	"securesend/internal/database"
	"securesend/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	OTPTTL        time.Duration
	HistoryWindow int
	HistoryCap    int
	Lockout       auth.LockoutPolicy
	Password      auth.PasswordPolicy
	Tiers         TierLimits
}

type AuthService struct {
	accounts AccountStore
	sessions SessionStore
	activity activityRecorder
	mailer   Mailer
	cfg      AuthConfig
	now      func() time.Time

	// timingHash is compared against when the email is unknown so the
	// response time does not reveal whether an account exists.
	timingHash string
	decoys     *decoyAttempts
}

func NewAuthService(accounts AccountStore, sessions SessionStore, activity ActivityStore, mailer Mailer, cfg AuthConfig) *AuthService {
	timingHash, err := auth.HashPassword(uuid.NewString())
	if err != nil {
		log.WithError(err).Warn("failed to prepare timing hash")
	}
	s := &AuthService{
		accounts:   accounts,
		sessions:   sessions,
		mailer:     mailer,
		cfg:        cfg,
		now:        time.Now,
		timingHash: timingHash,
		decoys:     newDecoyAttempts(),
	}
	s.activity = activityRecorder{store: activity, now: s.clock}
	return s
}

func (s *AuthService) clock() time.Time {
	return s.now().UTC()
}

type IssuedSession struct {
	Token     string
	SessionID uuid.UUID
	ExpiresAt time.Time
	Account   *models.Account
}

type OtpChallenge struct {
	Email     string
	ExpiresAt time.Time
}

type Profile struct {
	ID                  int64       `json:"id"`
	Email               string      `json:"email"`
	Role                models.Role `json:"role"`
	UploadLimitBytes    int64       `json:"upload_limit_bytes"`
	ProUntil            *time.Time  `json:"pro_until,omitempty"`
	PasswordLastChanged time.Time   `json:"password_last_changed"`
	CreatedAt           time.Time   `json:"created_at"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func policyError(err error) *Error {
	var violation *auth.PolicyViolation
	if errors.As(err, &violation) {
		e := ErrPasswordPolicy.withMessage(violation.Message)
		e.Suggestions = violation.Suggestions
		return e
	}
	return internal(err)
}

func lockedError(until *time.Time) *Error {
	e := ErrLocked.clone()
	if until != nil {
		t := *until
		e.LockoutUntil = &t
	}
	return e
}

func invalidCredentials(remaining int) *Error {
	e := ErrInvalidCredentials.clone()
	e.AttemptsLeft = &remaining
	return e
}

func (s *AuthService) issueSession(ctx context.Context, account *models.Account, meta RequestMeta) (*IssuedSession, error) {
	now := s.clock()
	sessionID := uuid.New()
	expiresAt := now.Add(s.cfg.SessionTTL)

	token, err := auth.GenerateJWT(account, sessionID, s.cfg.JWTSecret, expiresAt)
	if err != nil {
		return nil, internal(fmt.Errorf("failed to sign token: %w", err))
	}

	err = s.sessions.CreateSession(ctx, database.CreateSessionParams{
		ID:        sessionID,
		AccountID: account.ID,
		UserAgent: meta.UserAgent,
		ClientIP:  meta.IP,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, internal(fmt.Errorf("failed to persist session: %w", err))
	}

	return &IssuedSession{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
		Account:   account,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email, password string, meta RequestMeta) (*IssuedSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	existing, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, internal(err)
	}
	if existing != nil {
		return nil, ErrDuplicateAccount
	}

	if err := s.cfg.Password.Validate(password, email); err != nil {
		return nil, policyError(err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, internal(err)
	}

	account, err := s.accounts.CreateAccount(ctx, database.CreateAccountParams{
		Email:           email,
		PasswordHash:    hash,
		Role:            models.RoleUser,
		PasswordHistory: []string{hash},
		CreatedAt:       s.clock(),
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			return nil, ErrDuplicateAccount
		}
		return nil, internal(err)
	}

	s.activity.record(ctx, account.ID, models.ActionUserRegistered, "Account created", meta)
	return s.issueSession(ctx, account, meta)
}

// LoginStep1 checks the password and mails a one-time code. A locked account
// is rejected before any hashing takes place.
func (s *AuthService) LoginStep1(ctx context.Context, email, password string, meta RequestMeta) (*OtpChallenge, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, internal(err)
	}
	now := s.clock()
	if account == nil {
		return nil, s.decoyLogin(email, password, now)
	}

	if s.cfg.Lockout.IsLocked(account, now) {
		return nil, lockedError(account.LockoutUntil)
	}

	var (
		failure     *Error
		newlyLocked bool
		code        string
		expires     time.Time
	)
	updated, err := s.accounts.UpdateAccount(ctx, account.ID, func(a *models.Account) error {
		failure, newlyLocked, code = nil, false, ""

		// Another request may have locked the account since the read above.
		if s.cfg.Lockout.IsLocked(a, now) {
			failure = lockedError(a.LockoutUntil)
			return nil
		}

		if !auth.CheckPasswordHash(password, a.PasswordHash) {
			remaining := s.cfg.Lockout.OnFailure(a, now)
			if s.cfg.Lockout.IsLocked(a, now) {
				failure = lockedError(a.LockoutUntil)
				newlyLocked = true
			} else {
				failure = invalidCredentials(remaining)
			}
			return nil
		}

		s.cfg.Lockout.OnSuccess(a)
		var err error
		code, expires, err = auth.IssueOtp(now, s.cfg.OTPTTL)
		if err != nil {
			return err
		}
		a.OTP = &code
		a.OTPExpires = &expires
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	if updated == nil {
		return nil, ErrInvalidCredentials
	}

	if failure != nil {
		if newlyLocked {
			s.activity.record(ctx, account.ID, models.ActionAccountLocked,
				fmt.Sprintf("Locked after %d failed attempts", updated.FailedLoginAttempts), meta)
		} else if failure.Kind == KindAuthentication {
			s.activity.record(ctx, account.ID, models.ActionLoginFailed, "Invalid password", meta)
		}
		return nil, failure
	}

	body := fmt.Sprintf("Your One-Time Password is: %s\nIt is valid for %d minutes.", code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, account.Email, "Your SecureSend Login OTP", body); err != nil {
		log.WithError(err).WithField("account_id", account.ID).Error("failed to deliver login OTP")
		s.discardOtp(ctx, account.ID, code)
		return nil, dependency(ErrOtpDelivery, err)
	}

	s.activity.record(ctx, account.ID, models.ActionLoginOTPSent, "Login code sent", meta)
	return &OtpChallenge{Email: account.Email, ExpiresAt: expires}, nil
}

// decoyLogin answers for an unknown email the way a wrong password would: a
// locked decoy is rejected before hashing, otherwise one bcrypt comparison
// runs and the decoy counter moves.
func (s *AuthService) decoyLogin(email, password string, now time.Time) *Error {
	if until := s.decoys.lockedUntil(email, s.cfg.Lockout, now); until != nil {
		return lockedError(until)
	}
	auth.CheckPasswordHash(password, s.timingHash)
	return s.decoys.fail(email, s.cfg.Lockout, now)
}

// discardOtp clears an undeliverable code unless it was already replaced.
func (s *AuthService) discardOtp(ctx context.Context, accountID int64, code string) {
	_, err := s.accounts.UpdateAccount(ctx, accountID, func(a *models.Account) error {
		if a.OTP != nil && *a.OTP == code {
			a.ClearOTP()
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("account_id", accountID).Error("failed to discard undelivered OTP")
	}
}

func (s *AuthService) VerifyOtp(ctx context.Context, email, code string, meta RequestMeta) (*IssuedSession, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrMissingFields
	}

	account, err := s.accounts.UpdateAccountByOTP(ctx, email, code, s.clock(), func(a *models.Account) error {
		a.ClearOTP()
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	if account == nil {
		return nil, ErrInvalidOrExpiredOtp
	}

	s.activity.record(ctx, account.ID, models.ActionUserLogin, "Logged in", meta)
	return s.issueSession(ctx, account, meta)
}

// ForgotPassword answers the same way whether or not the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingFields
	}

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return internal(err)
	}
	if account == nil {
		return nil
	}

	now := s.clock()
	var code string
	_, err = s.accounts.UpdateAccount(ctx, account.ID, func(a *models.Account) error {
		var err error
		var expires time.Time
		code, expires, err = auth.IssueOtp(now, s.cfg.OTPTTL)
		if err != nil {
			return err
		}
		a.OTP = &code
		a.OTPExpires = &expires
		return nil
	})
	if err != nil {
		return internal(err)
	}

	body := fmt.Sprintf("Your password reset code is: %s\nIt is valid for %d minutes. If you did not request a reset, ignore this email.",
		code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, account.Email, "SecureSend Password Reset Code", body); err != nil {
		log.WithError(err).WithField("account_id", account.ID).Error("failed to deliver password reset code")
		return nil
	}

	s.activity.record(ctx, account.ID, models.ActionPasswordResetRequested, "Password reset code sent", meta)
	return nil
}

// applyNewPassword rejects reuse of the recent history window, then rotates
// the hash and trims the history to its cap.
func (s *AuthService) applyNewPassword(a *models.Account, newPassword string, now time.Time) error {
	recent := a.PasswordHistory
	if s.cfg.HistoryWindow > 0 && len(recent) > s.cfg.HistoryWindow {
		recent = recent[len(recent)-s.cfg.HistoryWindow:]
	}
	for _, oldHash := range recent {
		if auth.CheckPasswordHash(newPassword, oldHash) {
			return ErrPasswordReused.withMessage(
				fmt.Sprintf("Cannot reuse one of the last %d passwords.", s.cfg.HistoryWindow))
		}
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	a.PasswordHash = hash
	a.PasswordLastChanged = now
	a.PasswordHistory = append(a.PasswordHistory, hash)
	if s.cfg.HistoryCap > 0 && len(a.PasswordHistory) > s.cfg.HistoryCap {
		a.PasswordHistory = a.PasswordHistory[len(a.PasswordHistory)-s.cfg.HistoryCap:]
	}
	a.ClearOTP()
	return nil
}

func (s *AuthService) terminateAll(ctx context.Context, accountID int64) {
	if err := s.sessions.DeleteAllSessionsForAccount(ctx, accountID); err != nil {
		log.WithError(err).WithField("account_id", accountID).Error("failed to terminate sessions after password change")
	}
}

// ResetPassword consumes a reset code. A rejected new password leaves the
// code usable until it expires.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string, meta RequestMeta) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return ErrMissingFields
	}

	now := s.clock()
	account, err := s.accounts.UpdateAccountByOTP(ctx, email, code, now, func(a *models.Account) error {
		if err := s.cfg.Password.ValidateMinLength(newPassword); err != nil {
			return policyError(err)
		}
		return s.applyNewPassword(a, newPassword, now)
	})
	if err != nil {
		return asServiceError(err)
	}
	if account == nil {
		return ErrInvalidOrExpiredOtp
	}

	s.terminateAll(ctx, account.ID)
	s.activity.record(ctx, account.ID, models.ActionPasswordReset, "Password reset with emailed code", meta)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, p *Principal, currentPassword, newPassword string, meta RequestMeta) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if currentPassword == "" || newPassword == "" {
		return ErrMissingFields
	}

	now := s.clock()
	account, err := s.accounts.UpdateAccount(ctx, p.AccountID, func(a *models.Account) error {
		if !auth.CheckPasswordHash(currentPassword, a.PasswordHash) {
			return ErrIncorrectPassword
		}
		if err := s.cfg.Password.ValidateMinLength(newPassword); err != nil {
			return policyError(err)
		}
		return s.applyNewPassword(a, newPassword, now)
	})
	if err != nil {
		return asServiceError(err)
	}
	if account == nil {
		return ErrUnauthenticated
	}

	s.terminateAll(ctx, account.ID)
	s.activity.record(ctx, account.ID, models.ActionPasswordChanged, "Password was changed successfully.", meta)
	return nil
}

// Logout is idempotent; a missing principal or an already deleted session is
// not an error.
func (s *AuthService) Logout(ctx context.Context, p *Principal, meta RequestMeta) error {
	if p == nil {
		return nil
	}
	deleted, err := s.sessions.DeleteSessionByID(ctx, p.SessionID, p.AccountID)
	if err != nil {
		return internal(err)
	}
	if deleted {
		s.activity.record(ctx, p.AccountID, models.ActionLogout, "Logged out", meta)
	}
	return nil
}

// Authenticate resolves a session token to a Principal. Tokens whose session
// was terminated are rejected even before they expire.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := auth.VerifyJWT(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	sessionID := claims.SessionID()
	if sessionID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, internal(err)
	}
	if session == nil || session.AccountID != claims.AccountID || !session.ExpiresAt.After(s.clock()) {
		return nil, ErrUnauthenticated
	}

	return &Principal{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: sessionID,
	}, nil
}

func (s *AuthService) Me(ctx context.Context, p *Principal) (*Profile, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	account, err := s.accounts.GetAccountByID(ctx, p.AccountID)
	if err != nil {
		return nil, internal(err)
	}
	if account == nil {
		return nil, ErrUnauthenticated
	}

	role := account.EffectiveRole(s.clock())
	return &Profile{
		ID:                  account.ID,
		Email:               account.Email,
		Role:                role,
		UploadLimitBytes:    s.cfg.Tiers.For(role),
		ProUntil:            account.ProUntil,
		PasswordLastChanged: account.PasswordLastChanged,
		CreatedAt:           account.CreatedAt,
	}, nil
}

func (s *AuthService) ListSessions(ctx context.Context, p *Principal) ([]models.Session, error) {
	sessions, err := s.sessions.ListSessionsForAccount(ctx, p.AccountID, s.clock())
	if err != nil {
		return nil, internal(err)
	}
	return sessions, nil
}

func (s *AuthService) TerminateSession(ctx context.Context, p *Principal, sessionID uuid.UUID) error {
	deleted, err := s.sessions.DeleteSessionByID(ctx, sessionID, p.AccountID)
	if err != nil {
		return internal(err)
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

func (s *AuthService) TerminateAllSessions(ctx context.Context, p *Principal) error {
	if err := s.sessions.DeleteAllSessionsForAccount(ctx, p.AccountID); err != nil {
		return internal(err)
	}
	return nil
}
