// Package guard はナビゲーション先とSessionから表示またはリダイレクトを決めるRoute Guardを提供する。
//
// ルーティング層ではRoleによる制限を行わない。管理者専用ページへの制限はページ自身が行う。
package guard

import (
	"net/url"
	"strings"

	"github.com/hitoshi/smolhub/internal/model"
)

// 宣言済みのパス
const (
	PathAuth    = "/auth"
	PathHome    = "/"
	PathProfile = "/profile"
	PathUpload  = "/upload-model"

	modelPrefix = "/model/"
)

// Page は表示するページ。
type Page string

const (
	PageNone    Page = ""
	PageAuth    Page = "auth"
	PageHome    Page = "home"
	PageModel   Page = "model"
	PageProfile Page = "profile"
	PageUpload  Page = "upload"
)

// Action はRoute Guardの判定結果の種別。
type Action int

const (
	// ActionPlaceholder はSessionの読み込み中を表す。何も表示せず、リダイレクトもしない。
	ActionPlaceholder Action = iota
	// ActionRender はPageを表示する。
	ActionRender
	// ActionRedirect はTargetへ遷移し直す。
	ActionRedirect
	// ActionNotFound は宣言されていないパスを表す。
	ActionNotFound
)

// String はログ・表示用の表記を返す。
func (a Action) String() string {
	switch a {
	case ActionPlaceholder:
		return "placeholder"
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	case ActionNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Decision はRoute Guardの判定結果。
// Paramsにはパスパラメータ（id）とクエリ文字列の値が入る。
type Decision struct {
	Action Action
	Page   Page
	Target string
	Params map[string]string
}

// Decide はpathへのナビゲーションをsessionに基づいて判定する。
// クエリ文字列はパスの照合には使わず、Paramsに格納する。
func Decide(path string, session model.Session) Decision {
	if session.Loading {
		return Decision{Action: ActionPlaceholder}
	}

	page, params, ok := match(path)
	if !ok {
		return Decision{Action: ActionNotFound, Params: params}
	}

	authenticated := session.Authenticated()
	switch {
	case page == PageAuth && authenticated:
		return Decision{Action: ActionRedirect, Target: PathHome, Params: params}
	case page != PageAuth && !authenticated:
		return Decision{Action: ActionRedirect, Target: PathAuth, Params: params}
	default:
		return Decision{Action: ActionRender, Page: page, Params: params}
	}
}

// Protected はpathがサインインを必要とするかどうかを返す。宣言されていないパスはfalse。
func Protected(path string) bool {
	page, _, ok := match(path)
	return ok && page != PageAuth
}

// ModelPath はモデルページのパスを返す。
func ModelPath(uniqueID string) string {
	return modelPrefix + url.PathEscape(uniqueID)
}

// match はパスを宣言済みのページに照合する。
func match(raw string) (Page, map[string]string, bool) {
	params := map[string]string{}

	u, err := url.Parse(raw)
	if err != nil {
		return PageNone, params, false
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	p := u.Path
	if p == "" {
		p = PathHome
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	switch p {
	case PathAuth:
		return PageAuth, params, true
	case PathHome:
		return PageHome, params, true
	case PathProfile:
		return PageProfile, params, true
	case PathUpload:
		return PageUpload, params, true
	}

	if id, ok := strings.CutPrefix(p, modelPrefix); ok && id != "" && !strings.Contains(id, "/") {
		params["id"] = id
		return PageModel, params, true
	}
	return PageNone, params, false
}
