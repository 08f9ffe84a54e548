// Package authflow はサインイン・サインアップとメール確認リンクの処理を提供する。
//
// Handleは1回の送信を単一の失敗境界として扱う。最初のエラーで残りの手順を中止して返し、
// 呼び出し側はnotify.ErrorMessageでインライン表示する文言を得る。
package authflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/smolhub/internal/client/guard"
	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/role"
)

// MinPasswordLength はサインアップ時のパスワードの最小文字数。
const MinPasswordLength = 6

// KindEmailConfirmation はメール確認リンクのtype。
const KindEmailConfirmation = "email_confirmation"

// 利用者に表示する文言
const (
	MessagePasswordTooShort   = "Password must be at least 6 characters long"
	MessageIncorrectLogin     = "Incorrect email or password. Please try again."
	MessageEmailConfirmed     = "Email confirmed successfully! Please sign in."
	messageEmailRequired      = "Email is required"
	messagePasswordRequired   = "Password is required"
	messageConfirmationFailed = "Email confirmation failed"
)

// Mode はフォームの種別。
type Mode string

const (
	ModeSignIn Mode = "sign_in"
	ModeSignUp Mode = "sign_up"
)

// Request はサインイン・サインアップフォームの入力。
// AsAdminはサインアップ時の管理者トグル。
type Request struct {
	Mode     Mode
	Email    string
	Password string
	AsAdmin  bool
}

// IdentityService はFlowが必要とする外部IdPの操作。
type IdentityService interface {
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error)
	VerifyEmailToken(ctx context.Context, tokenHash, kind string) error
}

// RoleWriter はuser_rolesへの行の作成。
type RoleWriter interface {
	InsertRole(ctx context.Context, row model.UserRole) error
}

// Navigator はページ遷移を行う。
type Navigator func(path string)

// Options はFlowの設定。
type Options struct {
	StepTimeout time.Duration // 外部呼び出し1回ごとのタイムアウト。0の場合は30秒
	Logger      *slog.Logger
}

// Flow はAuthページのhandleAuthとメール確認の処理。
type Flow struct {
	identity IdentityService
	roles    RoleWriter
	policy   role.Policy
	surface  notify.Surface
	navigate Navigator
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFlow はFlowを生成する。
func NewFlow(identity IdentityService, roles RoleWriter, policy role.Policy, surface notify.Surface, navigate Navigator, opts Options) *Flow {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if navigate == nil {
		navigate = func(string) {}
	}
	return &Flow{
		identity: identity,
		roles:    roles,
		policy:   policy,
		surface:  surface,
		navigate: navigate,
		timeout:  opts.StepTimeout,
		logger:   opts.Logger,
	}
}

// AdminToggleAvailable はサインアップフォームに管理者トグルを出すかどうかを返す。
func (f *Flow) AdminToggleAvailable() bool {
	return f.policy.AllowsSelfAssertedAdmin()
}

// Handle はフォームの送信を処理する。
func (f *Flow) Handle(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Email) == "" {
		return model.NewValidationError(messageEmailRequired)
	}
	if req.Password == "" {
		return model.NewValidationError(messagePasswordRequired)
	}

	if req.Mode == ModeSignUp {
		return f.signUp(ctx, req)
	}
	return f.signIn(ctx, req)
}

func (f *Flow) signUp(ctx context.Context, req Request) error {
	if len([]rune(req.Password)) < MinPasswordLength {
		return model.NewValidationError(MessagePasswordTooShort)
	}

	stepCtx, cancel := context.WithTimeout(ctx, f.timeout)
	identity, err := f.identity.SignUp(stepCtx, req.Email, req.Password)
	cancel()
	if err != nil {
		return err
	}

	if req.AsAdmin {
		if !f.policy.AllowsSelfAssertedAdmin() {
			f.logger.Info("admin toggle ignored under allowlist policy", slog.String("user_id", identity.ID))
		} else if err := f.assertAdmin(ctx, identity); err != nil {
			return err
		}
	}

	f.surface.Confirm(notify.CheckEmail(req.Email, func() {
		f.navigate(guard.PathAuth)
	}))
	return nil
}

// assertAdmin はサインアップ直後にuser_rolesへ管理者の行を作成する。
// 申告はサーバー側で審査されない。
func (f *Flow) assertAdmin(ctx context.Context, identity *model.Identity) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.roles.InsertRole(stepCtx, model.UserRole{UserID: identity.ID, Role: model.RoleAdmin}); err != nil {
		return err
	}
	f.logger.Warn("self-asserted admin role recorded at sign-up", slog.String("user_id", identity.ID))
	return nil
}

func (f *Flow) signIn(ctx context.Context, req Request) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if _, err := f.identity.SignInWithPassword(stepCtx, req.Email, req.Password); err != nil {
		if model.HasCode(err, model.ErrCodeInvalidCredentials) {
			rejected := model.NewIdentityRejectedError(MessageIncorrectLogin)
			rejected.Err = err
			return rejected
		}
		return err
	}

	f.navigate(guard.PathHome)
	return nil
}

// ConfirmEmail はメール確認リンクのパラメータを処理する。
// kindがemail_confirmationでtokenHashが空でない場合だけ処理し、handledにtrueを返す。
func (f *Flow) ConfirmEmail(ctx context.Context, tokenHash, kind string) (handled bool, err error) {
	if kind != KindEmailConfirmation || tokenHash == "" {
		return false, nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.identity.VerifyEmailToken(stepCtx, tokenHash, kind); err != nil {
		msg := notify.ErrorMessage(err)
		if msg == "" {
			msg = messageConfirmationFailed
		}
		rejected := model.NewIdentityRejectedError(msg)
		rejected.Err = err
		return true, rejected
	}

	f.surface.Notify(notify.Notice{Level: notify.LevelSuccess, Message: MessageEmailConfirmed})
	f.navigate(guard.PathAuth)
	return true, nil
}
