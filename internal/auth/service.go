// Package auth はメールアドレスとパスワードによる認証、トークン発行、メール確認を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smolhub/internal/metrics"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// VerifyTypeEmailConfirmation はサインアップ時のメール確認種別。
const VerifyTypeEmailConfirmation = "email_confirmation"

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BaseURL         string // 確認リンクの生成に使う
}

// Grant はサインインまたはトークン更新の結果。
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	hasher       PasswordHasher
	tokens       *TokenIssuer
	verification VerificationStore
	mailer       Mailer
	metrics      metrics.MetricsCollector
	config       ServiceConfig
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	verification VerificationStore,
	mailer Mailer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		hasher:       hasher,
		tokens:       tokens,
		verification: verification,
		mailer:       mailer,
		metrics:      collector,
		config:       config,
		now:          time.Now,
	}
}

// SignUp はユーザーとプロフィールを作成し、確認メールを送信する。
// 作成されたユーザーはメール確認が完了するまでサインインできない。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, model.NewValidationError("Unable to validate email address: invalid format")
	}
	if len(password) < MinPasswordLength {
		return nil, model.NewValidationError("Password must be at least 6 characters long")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &model.Profile{ID: user.ID, Email: email, CreatedAt: now}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewIdentityRejectedError("User already registered")
		}
		return nil, fmt.Errorf("failed to create user and profile: %w", err)
	}

	tokenHash, err := s.verification.Create(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification token: %w", err)
	}
	if err := s.mailer.SendConfirmation(ctx, email, ConfirmationLink(s.config.BaseURL, tokenHash)); err != nil {
		return nil, fmt.Errorf("failed to send confirmation email: %w", err)
	}

	s.metrics.RecordSignUp()
	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)
	return user, nil
}

// SignIn はメールアドレスとパスワードを検証してトークンを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || s.hasher.Compare(user.PasswordHash, password) != nil {
		s.metrics.RecordSignInFailure("invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.Confirmed() {
		s.metrics.RecordSignInFailure("email_not_confirmed")
		return nil, model.NewEmailNotConfirmedError()
	}

	grant, err := s.createSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("サインインしました", slog.String("user_id", user.ID))
	return grant, nil
}

// Refresh はリフレッシュトークンを新しいものに差し替え、アクセストークンを再発行する。
// 一度使われたリフレッシュトークンは再利用できない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, model.NewIdentityRejectedError("Invalid Refresh Token: Refresh Token Not Found")
	}

	oldHash := hashToken(refreshToken)
	session, err := s.sessionRepo.FindByRefreshTokenHash(ctx, oldHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewIdentityRejectedError("Invalid Refresh Token: Refresh Token Not Found")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotAuthenticatedError()
	}

	newRefresh, err := generateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	rotated, err := s.sessionRepo.RotateRefreshToken(ctx, session.ID, oldHash, hashToken(newRefresh), s.now().Add(s.config.RefreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		return nil, model.NewIdentityRejectedError("Invalid Refresh Token: Already Used")
	}

	access, expiresAt, err := s.tokens.Issue(user.ID, user.Email, session.ID)
	if err != nil {
		return nil, err
	}

	return &Grant{AccessToken: access, RefreshToken: newRefresh, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate はアクセストークンを検証し、有効なセッションに紐づく主体を返す。
// サインアウト済みのセッションのトークンは拒否する。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Principal, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, model.NewNotAuthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, model.NewNotAuthenticatedError()
	}

	return &model.Principal{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}

// GetUser は指定IDのユーザーを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotAuthenticatedError()
	}
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("サインアウトしました", slog.String("session_id", sessionID))
	return nil
}

// Verify はメール確認トークンを引き換えてメールアドレスを確認済みにする。
func (s *Service) Verify(ctx context.Context, tokenHash, kind string) (*model.User, error) {
	if kind != VerifyTypeEmailConfirmation {
		return nil, model.NewIdentityRejectedError(fmt.Sprintf("Unsupported verification type %q", kind))
	}
	if tokenHash == "" {
		return nil, model.NewIdentityRejectedError("Email link is invalid or has expired")
	}

	userID, err := s.verification.Redeem(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrVerificationNotFound) {
			return nil, model.NewIdentityRejectedError("Email link is invalid or has expired")
		}
		return nil, fmt.Errorf("failed to redeem verification token: %w", err)
	}

	if err := s.userRepo.ConfirmEmail(ctx, userID, s.now()); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewIdentityRejectedError("Email link is invalid or has expired")
	}

	slog.Info("メールアドレスを確認しました", slog.String("user_id", userID))
	return user, nil
}

// createSession はセッションを作成し、トークンを発行する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*Grant, error) {
	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now()
	session := &model.AuthSession{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refresh),
		ExpiresAt:        now.Add(s.config.RefreshTokenTTL),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	access, expiresAt, err := s.tokens.Issue(user.ID, user.Email, session.ID)
	if err != nil {
		return nil, err
	}

	return &Grant{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt, User: user}, nil
}
