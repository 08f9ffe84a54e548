package guard

import (
	"testing"

	"github.com/hitoshi/smolhub/internal/model"
)

var (
	loading   = model.Session{Loading: true}
	anonymous = model.Session{Role: model.RoleUser}
	signedIn  = model.Session{Identity: &model.Identity{ID: "user-1", Email: "a@x.com"}, Role: model.RoleUser}
	admin     = model.Session{Identity: &model.Identity{ID: "user-2", Email: "root@x.com"}, Role: model.RoleAdmin}
)

var declaredPaths = []string{"/auth", "/", "/model/my-model", "/profile", "/upload-model"}

func TestDecide_LoadingNeverRendersOrRedirects(t *testing.T) {
	for _, path := range append(declaredPaths, "/nowhere") {
		d := Decide(path, loading)
		if d.Action != ActionPlaceholder {
			t.Errorf("Decide(%q, loading) = %v, want placeholder", path, d.Action)
		}
		if d.Page != PageNone || d.Target != "" {
			t.Errorf("Decide(%q, loading) = %+v, want no page and no target", path, d)
		}
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		session    model.Session
		wantAction Action
		wantPage   Page
		wantTarget string
	}{
		{"匿名 /auth は表示", "/auth", anonymous, ActionRender, PageAuth, ""},
		{"匿名 / はサインインへ", "/", anonymous, ActionRedirect, PageNone, PathAuth},
		{"匿名 /model はサインインへ", "/model/my-model", anonymous, ActionRedirect, PageNone, PathAuth},
		{"匿名 /profile はサインインへ", "/profile", anonymous, ActionRedirect, PageNone, PathAuth},
		{"匿名 /upload-model はサインインへ", "/upload-model", anonymous, ActionRedirect, PageNone, PathAuth},
		{"認証済み /auth はホームへ", "/auth", signedIn, ActionRedirect, PageNone, PathHome},
		{"認証済み / は表示", "/", signedIn, ActionRender, PageHome, ""},
		{"認証済み /model は表示", "/model/my-model", signedIn, ActionRender, PageModel, ""},
		{"認証済み /profile は表示", "/profile", signedIn, ActionRender, PageProfile, ""},
		{"一般ユーザーでも /upload-model は表示", "/upload-model", signedIn, ActionRender, PageUpload, ""},
		{"管理者 /upload-model は表示", "/upload-model", admin, ActionRender, PageUpload, ""},
		{"末尾スラッシュ", "/profile/", signedIn, ActionRender, PageProfile, ""},
		{"空パスはホーム", "", signedIn, ActionRender, PageHome, ""},
		{"未宣言パス", "/settings", signedIn, ActionNotFound, PageNone, ""},
		{"未宣言パス（匿名でもリダイレクトしない）", "/settings", anonymous, ActionNotFound, PageNone, ""},
		{"idなしのモデルページ", "/model/", signedIn, ActionNotFound, PageNone, ""},
		{"階層の深いモデルページ", "/model/a/b", signedIn, ActionNotFound, PageNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.path, tt.session)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %v, want %v", d.Action, tt.wantAction)
			}
			if d.Page != tt.wantPage {
				t.Errorf("Page = %q, want %q", d.Page, tt.wantPage)
			}
			if d.Target != tt.wantTarget {
				t.Errorf("Target = %q, want %q", d.Target, tt.wantTarget)
			}
		})
	}
}

func TestDecide_ModelIDParam(t *testing.T) {
	d := Decide("/model/my%20model", signedIn)
	if d.Action != ActionRender || d.Page != PageModel {
		t.Fatalf("decision = %+v", d)
	}
	if d.Params["id"] != "my model" {
		t.Errorf("id = %q, want %q", d.Params["id"], "my model")
	}
}

func TestDecide_QueryIsKeptInParams(t *testing.T) {
	d := Decide("/auth?token_hash=abc123&type=email_confirmation", anonymous)
	if d.Action != ActionRender || d.Page != PageAuth {
		t.Fatalf("decision = %+v, want render auth", d)
	}
	if d.Params["token_hash"] != "abc123" || d.Params["type"] != "email_confirmation" {
		t.Errorf("Params = %v", d.Params)
	}
}

func TestDecide_RoleIsNotARoutingGate(t *testing.T) {
	for _, path := range declaredPaths[1:] {
		user := Decide(path, signedIn)
		adm := Decide(path, admin)
		if user.Action != adm.Action || user.Page != adm.Page {
			t.Errorf("Decide(%q) differs by role: user=%+v admin=%+v", path, user, adm)
		}
	}
}

func TestProtected(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/auth", false},
		{"/auth?type=email_confirmation", false},
		{"/", true},
		{"/model/x", true},
		{"/profile", true},
		{"/upload-model", true},
		{"/nowhere", false},
	}
	for _, tt := range tests {
		if got := Protected(tt.path); got != tt.want {
			t.Errorf("Protected(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestModelPath(t *testing.T) {
	if got := ModelPath("my model"); got != "/model/my%20model" {
		t.Errorf("ModelPath = %q", got)
	}
	d := Decide(ModelPath("my-model"), signedIn)
	if d.Params["id"] != "my-model" {
		t.Errorf("round trip id = %q", d.Params["id"])
	}
}
