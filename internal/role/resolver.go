package role

import (
	"context"
	"fmt"

	"github.com/hitoshi/smolhub/internal/model"
)

// Lookup はuser_rolesの行を参照するインターフェース。
// 行が存在しない場合は(nil, nil)を返す。
type Lookup interface {
	FindRole(ctx context.Context, userID string) (*model.UserRole, error)
}

// Resolver はPolicyに従ってIdentityのRoleを導出する。
// 結果をキャッシュしないため、呼び出しのたびに導出し直される。
type Resolver struct {
	policy Policy
	lookup Lookup
}

// NewResolver は新しいResolverを生成する。
// 許可リストポリシーではlookupはnilでよい。
func NewResolver(policy Policy, lookup Lookup) *Resolver {
	return &Resolver{policy: policy, lookup: lookup}
}

// Policy は設定されたポリシーを返す。
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve はidentityのRoleを返す。
// 匿名（nil）の場合は常にRoleUser。
// 参照に失敗した場合はエラーを返す。呼び出し側はRoleUserとして扱うこと。
func (r *Resolver) Resolve(ctx context.Context, identity *model.Identity) (model.Role, error) {
	if identity == nil {
		return model.RoleUser, nil
	}

	switch r.policy.Kind {
	case KindAllowlist:
		if identity.Email == r.policy.AdminEmail {
			return model.RoleAdmin, nil
		}
		return model.RoleUser, nil

	case KindRow:
		if r.lookup == nil {
			return model.RoleUser, fmt.Errorf("role lookup is not configured")
		}
		row, err := r.lookup.FindRole(ctx, identity.ID)
		if err != nil {
			return model.RoleUser, fmt.Errorf("failed to look up role: %w", err)
		}
		if row == nil || !row.Role.Valid() {
			return model.RoleUser, nil
		}
		return row.Role, nil

	default:
		return model.RoleUser, fmt.Errorf("unknown role policy %q", r.policy.Kind)
	}
}

// ResolveOrUser はResolveの失敗をRoleUserに倒して返す。
func (r *Resolver) ResolveOrUser(ctx context.Context, identity *model.Identity) model.Role {
	role, err := r.Resolve(ctx, identity)
	if err != nil {
		return model.RoleUser
	}
	return role
}
