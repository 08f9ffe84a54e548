// Package user はプロフィールとロール行に関するドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/repository"
	"github.com/hitoshi/smolhub/internal/role"
)

// UserFinder はユーザーの参照インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service はプロフィールとロールのサービス層。
// 参照は本人の行に限る。
type Service struct {
	userRepo     UserFinder
	profileRepo  repository.ProfileRepository
	roleRepo     repository.RoleRepository
	policy       role.Policy
	signupWindow time.Duration
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// signupWindowはサインアップ直後のロール行作成を受け付ける期間。
func NewService(
	userRepo UserFinder,
	profileRepo repository.ProfileRepository,
	roleRepo repository.RoleRepository,
	policy role.Policy,
	signupWindow time.Duration,
) *Service {
	return &Service{
		userRepo:     userRepo,
		profileRepo:  profileRepo,
		roleRepo:     roleRepo,
		policy:       policy,
		signupWindow: signupWindow,
		now:          time.Now,
	}
}

// GetProfile は本人のプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, caller *model.Principal, id string) (*model.Profile, error) {
	if caller == nil {
		return nil, model.NewNotAuthenticatedError()
	}
	if caller.UserID != id {
		return nil, model.NewNotFoundError("Profile")
	}

	profile, err := s.profileRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewNotFoundError("Profile")
	}
	return profile, nil
}

// GetRole は本人のロール行を返す。行がない場合はNOT_FOUND。
func (s *Service) GetRole(ctx context.Context, caller *model.Principal, userID string) (*model.UserRole, error) {
	if caller == nil {
		return nil, model.NewNotAuthenticatedError()
	}
	if caller.UserID != userID {
		return nil, model.NewNotFoundError("Role")
	}

	row, err := s.roleRepo.FindRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}
	if row == nil {
		return nil, model.NewNotFoundError("Role")
	}
	return row, nil
}

// AssertRole はサインアップ直後のクライアントが申告したロール行を作成する。
//
// 受け付けるのは次の条件をすべて満たす場合のみ:
//   - ポリシーが申告による管理者化を許す（row）
//   - 対象ユーザーがサインアップ期間内に作成された
//   - まだロール行がない
//
// メール未確認のためcallerは通常nil。callerがある場合は本人の行に限る。
// この経路ではクライアントの申告だけで管理者になれる。
func (s *Service) AssertRole(ctx context.Context, caller *model.Principal, req model.UserRole) (*model.UserRole, error) {
	if !s.policy.AllowsSelfAssertedAdmin() {
		return nil, model.NewNotAuthorizedError()
	}
	if !req.Role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("Invalid role %q", req.Role))
	}
	if req.UserID == "" {
		return nil, model.NewValidationError("user_id is required")
	}
	if caller != nil && caller.UserID != req.UserID {
		return nil, model.NewNotAuthorizedError()
	}

	u, err := s.userRepo.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil || s.now().Sub(u.CreatedAt) > s.signupWindow {
		return nil, model.NewNotAuthorizedError()
	}

	existing, err := s.roleRepo.FindRole(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError()
	}

	row := &model.UserRole{UserID: req.UserID, Role: req.Role, CreatedAt: s.now()}
	if err := s.roleRepo.Create(ctx, row); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyExistsError()
		}
		return nil, fmt.Errorf("ロールの作成に失敗しました: %w", err)
	}

	slog.Info("ロール行を作成しました",
		slog.String("user_id", req.UserID),
		slog.String("role", string(req.Role)),
	)
	return row, nil
}
