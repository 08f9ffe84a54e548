// Package role はIdentityからRoleを導出するロールポリシーを提供する。
//
// ポリシーは行ベース（user_rolesテーブル参照）と許可リスト（単一メールアドレス一致）の
// 2種類で、どちらか一方だけを選択する。両者を組み合わせることはない。
//
// 行ベースポリシーでは、サインアップ時に利用者自身が選んだ管理者フラグに基づいて
// user_rolesの行が作成される。つまり権限昇格はクライアント申告であり、
// サーバー側で審査されない既知の穴である。smolhub-serverはサインアップ直後の
// 短い期間に、ロール行がまだない利用者からの作成だけを受け付けることで穴を狭めている
// （DESIGN.mdの「Threat model」を参照）。
package role

import (
	"fmt"
	"strings"
)

// Kind はロールポリシーの種別。
type Kind string

const (
	// KindRow はuser_rolesテーブルの行からロールを導出する。
	KindRow Kind = "row"
	// KindAllowlist は設定されたメールアドレスとの完全一致で管理者を判定する。
	KindAllowlist Kind = "allowlist"
)

// Policy はロール導出の方針を表すタグ付きバリアント。
// AdminEmailはKindAllowlistの場合のみ意味を持つ。
type Policy struct {
	Kind       Kind
	AdminEmail string
}

// RowPolicy は行ベースポリシーを返す。
func RowPolicy() Policy {
	return Policy{Kind: KindRow}
}

// AllowlistPolicy は許可リストポリシーを返す。
func AllowlistPolicy(adminEmail string) Policy {
	return Policy{Kind: KindAllowlist, AdminEmail: adminEmail}
}

// ParsePolicy は設定値からPolicyを生成する。
// kindが空の場合は行ベースポリシーになる。
func ParsePolicy(kind, adminEmail string) (Policy, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", KindRow:
		return RowPolicy(), nil
	case KindAllowlist:
		if strings.TrimSpace(adminEmail) == "" {
			return Policy{}, fmt.Errorf("allowlist policy requires an admin email")
		}
		return AllowlistPolicy(strings.TrimSpace(adminEmail)), nil
	default:
		return Policy{}, fmt.Errorf("unknown role policy %q", kind)
	}
}

// AllowsSelfAssertedAdmin はサインアップ時の管理者申告を受け付けるかどうかを返す。
// 行ベースポリシーの場合のみtrue。
func (p Policy) AllowsSelfAssertedAdmin() bool {
	return p.Kind == KindRow
}

// String はログ出力用の表記を返す。
func (p Policy) String() string {
	if p.Kind == KindAllowlist {
		return fmt.Sprintf("allowlist(%s)", p.AdminEmail)
	}
	return string(p.Kind)
}
