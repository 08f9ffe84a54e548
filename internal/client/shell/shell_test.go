package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/smolhub/internal/client/authflow"
	"github.com/hitoshi/smolhub/internal/client/guard"
	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/client/upload"
	"github.com/hitoshi/smolhub/internal/model"
	"github.com/hitoshi/smolhub/internal/security"
)

// fakeStore はSessionStoreのモック。
type fakeStore struct {
	session      model.Session
	restored     *model.Session // Initで復元するSession
	observers    []func(model.Session)
	initCalls    int
	disposeCalls int
	signOutCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{session: model.Session{Role: model.RoleUser, Loading: true}}
}

func (f *fakeStore) Init(ctx context.Context) error {
	f.initCalls++
	if f.restored != nil {
		f.session = *f.restored
	} else {
		f.session = model.Session{Role: model.RoleUser}
	}
	return nil
}

func (f *fakeStore) Current() model.Session { return f.session }

func (f *fakeStore) OnChange(fn func(model.Session)) func() {
	f.observers = append(f.observers, fn)
	return func() {}
}

func (f *fakeStore) SignOut(ctx context.Context) error {
	f.signOutCalls++
	f.set(model.Session{Role: model.RoleUser})
	return nil
}

func (f *fakeStore) Dispose() { f.disposeCalls++ }

func (f *fakeStore) set(sess model.Session) {
	f.session = sess
	for _, fn := range f.observers {
		fn(sess)
	}
}

func signedIn(role model.Role) *model.Session {
	return &model.Session{
		Identity: &model.Identity{ID: "user-1", Email: "a@x.com", AccessToken: "t"},
		Role:     role,
	}
}

// fakeAuth はAuthFlowのモック。
type fakeAuth struct {
	handleFn   func(ctx context.Context, req authflow.Request) error
	confirmFn  func(ctx context.Context, tokenHash, kind string) (bool, error)
	adminOK    bool
	requests   []authflow.Request
	confirmArg []string
}

func (f *fakeAuth) Handle(ctx context.Context, req authflow.Request) error {
	f.requests = append(f.requests, req)
	if f.handleFn != nil {
		return f.handleFn(ctx, req)
	}
	return nil
}

func (f *fakeAuth) ConfirmEmail(ctx context.Context, tokenHash, kind string) (bool, error) {
	f.confirmArg = append(f.confirmArg, tokenHash, kind)
	if f.confirmFn != nil {
		return f.confirmFn(ctx, tokenHash, kind)
	}
	return true, nil
}

func (f *fakeAuth) AdminToggleAvailable() bool { return f.adminOK }

// fakeCatalog はCatalogのモック。
type fakeCatalog struct {
	rows      []*model.ModelArtifact
	profileFn func(ctx context.Context, id string) (*model.Profile, error)
}

func (f *fakeCatalog) ListModels(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error) {
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := min(offset+limit, len(f.rows))
	return f.rows[offset:end], nil
}

func (f *fakeCatalog) FindModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
	for _, r := range f.rows {
		if r.UniqueID == uniqueID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) Profile(ctx context.Context, id string) (*model.Profile, error) {
	if f.profileFn != nil {
		return f.profileFn(ctx, id)
	}
	return &model.Profile{ID: id, Email: "a@x.com", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}, nil
}

// fakeUploader はUploaderのモック。
type fakeUploader struct {
	policy   upload.IDPolicy
	forms    []upload.Form
	contents []string
	err      error
}

func (f *fakeUploader) Submit(ctx context.Context, form upload.Form) (*model.ModelArtifact, error) {
	f.forms = append(f.forms, form)
	if form.File != nil {
		var b bytes.Buffer
		b.ReadFrom(form.File.Content)
		f.contents = append(f.contents, b.String())
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.ModelArtifact{UniqueID: upload.DeriveID(form.Name)}, nil
}

func (f *fakeUploader) IDPolicy() upload.IDPolicy {
	if f.policy == "" {
		return upload.IDDerived
	}
	return f.policy
}

func (f *fakeUploader) MaxFileSize() int64 { return upload.DefaultMaxFileSize }

type fixture struct {
	store    *fakeStore
	auth     *fakeAuth
	catalog  *fakeCatalog
	uploader *fakeUploader
	surface  *notify.Terminal
	out      *bytes.Buffer
	shell    *Shell
}

func newFixture(input string) *fixture {
	out := &bytes.Buffer{}
	f := &fixture{
		store:    newFakeStore(),
		auth:     &fakeAuth{},
		catalog:  &fakeCatalog{},
		uploader: &fakeUploader{},
		surface:  notify.NewTerminal(out),
		out:      out,
	}
	f.shell = New(Deps{
		Store:     f.store,
		Auth:      f.auth,
		Catalog:   f.catalog,
		Uploader:  f.uploader,
		Sanitizer: security.NewContentSanitizer(),
		Surface:   f.surface,
	}, Options{
		In:  strings.NewReader(input),
		Out: out,
		Now: func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) run(t *testing.T, start string) {
	t.Helper()
	if err := f.shell.Run(context.Background(), start); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func artifact(id string) *model.ModelArtifact {
	return &model.ModelArtifact{
		Name:       strings.ToUpper(id),
		UniqueID:   id,
		FilePath:   id + "/weights.bin",
		SizeBytes:  1024 * 1024,
		UpdateDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRun_AnonymousRedirectedToAuth(t *testing.T) {
	f := newFixture("")

	f.run(t, "/")

	if got := f.shell.Path(); got != guard.PathAuth {
		t.Errorf("Path() = %q, want /auth", got)
	}
	if !strings.Contains(f.out.String(), "Welcome to SmolHub") {
		t.Errorf("auth page not rendered:\n%s", f.out.String())
	}
}

func TestRun_StoreLifecycle(t *testing.T) {
	f := newFixture("exit\n")

	f.run(t, "/")

	if f.store.initCalls != 1 {
		t.Errorf("Init calls = %d, want 1", f.store.initCalls)
	}
	if f.store.disposeCalls != 1 {
		t.Errorf("Dispose calls = %d, want 1", f.store.disposeCalls)
	}
	if !strings.Contains(f.out.String(), "Bye!") {
		t.Error("exit should print Bye!")
	}
}

func TestRun_SignedInUserOnAuthGoesHome(t *testing.T) {
	f := newFixture("")
	f.store.restored = signedIn(model.RoleUser)
	f.catalog.rows = []*model.ModelArtifact{artifact("tiny")}

	f.run(t, "/auth")

	if got := f.shell.Path(); got != guard.PathHome {
		t.Errorf("Path() = %q, want /", got)
	}
	if !strings.Contains(f.out.String(), "tiny") {
		t.Errorf("home page should list models:\n%s", f.out.String())
	}
}

func TestSignIn_NavigatesHome(t *testing.T) {
	f := newFixture("signin\na@x.com\nsecret1\n")
	f.catalog.rows = []*model.ModelArtifact{artifact("tiny")}
	f.auth.handleFn = func(ctx context.Context, req authflow.Request) error {
		f.store.set(*signedIn(model.RoleUser))
		f.shell.Navigate(guard.PathHome)
		return nil
	}

	f.run(t, "/auth")

	if len(f.auth.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(f.auth.requests))
	}
	req := f.auth.requests[0]
	if req.Mode != authflow.ModeSignIn || req.Email != "a@x.com" || req.Password != "secret1" {
		t.Errorf("request = %+v", req)
	}
	if got := f.shell.Path(); got != guard.PathHome {
		t.Errorf("Path() = %q, want /", got)
	}
}

func TestSignIn_ErrorShownInline(t *testing.T) {
	f := newFixture("signin\na@x.com\nwrong\n")
	f.auth.handleFn = func(context.Context, authflow.Request) error {
		return model.NewIdentityRejectedError("Incorrect email or password. Please try again.")
	}

	f.run(t, "/auth")

	if !strings.Contains(f.out.String(), "[error] Incorrect email or password. Please try again.") {
		t.Errorf("error banner missing:\n%s", f.out.String())
	}
	if got := f.shell.Path(); got != guard.PathAuth {
		t.Errorf("Path() = %q, want /auth", got)
	}
}

func TestSignUp_AdminToggleAndConfirmation(t *testing.T) {
	f := newFixture("signup\nnew@x.com\nsecret1\ny\nhello\n\n")
	f.auth.adminOK = true
	f.auth.handleFn = func(ctx context.Context, req authflow.Request) error {
		f.surface.Confirm(notify.CheckEmail(req.Email, func() { f.shell.Navigate(guard.PathAuth) }))
		return nil
	}

	f.run(t, "/auth")

	if len(f.auth.requests) != 1 || !f.auth.requests[0].AsAdmin {
		t.Fatalf("requests = %+v, want one admin sign-up", f.auth.requests)
	}
	out := f.out.String()
	if !strings.Contains(out, "Check your email") || !strings.Contains(out, "new@x.com") {
		t.Errorf("confirmation not shown:\n%s", out)
	}
	if !strings.Contains(out, "Press Enter to close the dialog.") {
		t.Errorf("non-empty input should keep the dialog open:\n%s", out)
	}
	if f.surface.Pending() {
		t.Error("empty line should close the confirmation")
	}
}

func TestSignUp_NoAdminPromptUnderAllowlist(t *testing.T) {
	f := newFixture("signup\nnew@x.com\nsecret1\n")

	f.run(t, "/auth")

	if len(f.auth.requests) != 1 || f.auth.requests[0].AsAdmin {
		t.Fatalf("requests = %+v", f.auth.requests)
	}
	if strings.Contains(f.out.String(), "Register as administrator?") {
		t.Error("admin toggle should not be offered")
	}
}

func TestAuth_ConfirmationLink(t *testing.T) {
	f := newFixture("confirm https://hub.example.com/auth?token_hash=abc&type=email_confirmation\n")

	f.run(t, "/auth")

	if len(f.auth.confirmArg) != 2 || f.auth.confirmArg[0] != "abc" || f.auth.confirmArg[1] != "email_confirmation" {
		t.Errorf("ConfirmEmail args = %v", f.auth.confirmArg)
	}
}

func TestAuth_ConfirmationFailureShown(t *testing.T) {
	f := newFixture("")
	f.auth.confirmFn = func(context.Context, string, string) (bool, error) {
		return true, model.NewIdentityRejectedError("Token has expired or is invalid")
	}

	f.run(t, "/auth?token_hash=abc&type=email_confirmation")

	out := f.out.String()
	if !strings.Contains(out, "Token has expired or is invalid") {
		t.Errorf("failure not shown:\n%s", out)
	}
	if !strings.Contains(out, "Welcome to SmolHub") {
		t.Errorf("auth form should still render:\n%s", out)
	}
}

func TestHome_UploadMenuOnlyForAdmins(t *testing.T) {
	tests := []struct {
		name       string
		role       model.Role
		wantUpload bool
	}{
		{"管理者", model.RoleAdmin, true},
		{"一般ユーザー", model.RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("menu\n")
			f.store.restored = signedIn(tt.role)

			f.run(t, "/")

			out := f.out.String()
			if got := strings.Contains(out, "Upload Model"); got != tt.wantUpload {
				t.Errorf("menu shows Upload Model = %v, want %v:\n%s", got, tt.wantUpload, out)
			}
			if got := strings.Contains(out, "Admin"); got != tt.wantUpload {
				t.Errorf("Admin badge shown = %v, want %v", got, tt.wantUpload)
			}
			if !strings.Contains(out, "Joined 2026-01-02") {
				t.Errorf("menu should show the joined date:\n%s", out)
			}
		})
	}
}

func TestHome_Pagination(t *testing.T) {
	f := newFixture("next\nprev\n")
	f.store.restored = signedIn(model.RoleUser)
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		f.catalog.rows = append(f.catalog.rows, artifact(id))
	}

	f.run(t, "/")

	out := f.out.String()
	first := strings.Index(out, "page 1 | next")
	second := strings.Index(out, "prev | page 2")
	if first < 0 || second < first {
		t.Fatalf("pagination output unexpected:\n%s", out)
	}
	if !strings.Contains(out[first:second], "m7") {
		t.Errorf("second page should list m7:\n%s", out[first:second])
	}
	if strings.Contains(out[:first], "m7") {
		t.Error("first page should not list m7")
	}
}

func TestHome_OpenByNumber(t *testing.T) {
	f := newFixture("open 2\n")
	f.store.restored = signedIn(model.RoleUser)
	f.catalog.rows = []*model.ModelArtifact{artifact("m1"), artifact("m2")}

	f.run(t, "/")

	if got := f.shell.Path(); got != "/model/m2" {
		t.Errorf("Path() = %q, want /model/m2", got)
	}
}

func TestModel_RendersSanitizedReadme(t *testing.T) {
	f := newFixture("")
	f.store.restored = signedIn(model.RoleUser)
	a := artifact("tiny")
	a.ReadmeContent = "# Tiny\n<script>alert(1)</script>\x1b[31mred\n"
	f.catalog.rows = []*model.ModelArtifact{a}

	f.run(t, "/model/tiny")

	out := f.out.String()
	if !strings.Contains(out, "# Tiny") {
		t.Errorf("README missing:\n%s", out)
	}
	if strings.Contains(out, "<script") || strings.Contains(out, "alert(1)") || strings.Contains(out, "\x1b[31m") {
		t.Errorf("README not sanitized:\n%q", out)
	}
	if !strings.Contains(out, "1.00 MB") {
		t.Errorf("size missing:\n%s", out)
	}
}

func TestModel_NotFound(t *testing.T) {
	f := newFixture("")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/model/missing")

	if !strings.Contains(f.out.String(), "Model not found: missing") {
		t.Errorf("output:\n%s", f.out.String())
	}
}

func TestUndeclaredPathIsNotFound(t *testing.T) {
	f := newFixture("")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/datasets")

	if !strings.Contains(f.out.String(), "Page not found: /datasets") {
		t.Errorf("output:\n%s", f.out.String())
	}
}

func TestUpload_NonAdminSeesNotice(t *testing.T) {
	f := newFixture("submit\n")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/upload-model")

	if got := strings.Count(f.out.String(), MessageAdminOnly); got != 2 {
		t.Errorf("admin-only notice count = %d, want 2 (page + submit):\n%s", got, f.out.String())
	}
	if len(f.uploader.forms) != 0 {
		t.Errorf("Submit calls = %d, want 0", len(f.uploader.forms))
	}
}

func TestUpload_AdminSubmitsForm(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "weights.bin")
	if err := os.WriteFile(modelPath, []byte("0123456789"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := newFixture("submit\nMy Model\n" + modelPath + "\n\n\n")
	f.store.restored = signedIn(model.RoleAdmin)

	f.run(t, "/upload-model")

	if len(f.uploader.forms) != 1 {
		t.Fatalf("Submit calls = %d, want 1", len(f.uploader.forms))
	}
	form := f.uploader.forms[0]
	if form.Name != "My Model" || form.File == nil || form.File.Name != "weights.bin" || form.File.Size != 10 {
		t.Errorf("form = %+v", form)
	}
	if form.Readme != nil {
		t.Error("README should be omitted")
	}
	if form.UpdateDate != "2026-10-14" {
		t.Errorf("UpdateDate = %q, want today", form.UpdateDate)
	}
	if f.uploader.contents[0] != "0123456789" {
		t.Errorf("content = %q", f.uploader.contents[0])
	}
	if got := f.shell.Path(); got != guard.PathHome {
		t.Errorf("Path() = %q, want / after upload", got)
	}
}

func TestUpload_FailureStaysOnPage(t *testing.T) {
	f := newFixture("submit\nMy Model\n\n\n\n")
	f.store.restored = signedIn(model.RoleAdmin)
	f.uploader.err = model.NewValidationError("Please select a model file")

	f.run(t, "/upload-model")

	if !strings.Contains(f.out.String(), "[error] Please select a model file") {
		t.Errorf("output:\n%s", f.out.String())
	}
	if got := f.shell.Path(); got != guard.PathUpload {
		t.Errorf("Path() = %q, want /upload-model", got)
	}
}

func TestSignOut_NavigatesToAuth(t *testing.T) {
	f := newFixture("signout\n")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/profile")

	if f.store.signOutCalls != 1 {
		t.Errorf("SignOut calls = %d, want 1", f.store.signOutCalls)
	}
	if got := f.shell.Path(); got != guard.PathAuth {
		t.Errorf("Path() = %q, want /auth", got)
	}
}

func TestSessionChangeDuringCommandReroutes(t *testing.T) {
	f := newFixture("menu\n")
	f.store.restored = signedIn(model.RoleUser)
	f.catalog.profileFn = func(context.Context, string) (*model.Profile, error) {
		// 更新トークンが拒否されてサインアウトした場合を模す
		f.store.set(model.Session{Role: model.RoleUser})
		return nil, model.NewNotAuthenticatedError()
	}

	f.run(t, "/")

	if got := f.shell.Path(); got != guard.PathAuth {
		t.Errorf("Path() = %q, want /auth after the session ended", got)
	}
}

func TestBack(t *testing.T) {
	f := newFixture("go /profile\nback\n")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/")

	if got := f.shell.Path(); got != guard.PathHome {
		t.Errorf("Path() = %q, want /", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture("upload\n")
	f.store.restored = signedIn(model.RoleUser)

	f.run(t, "/")

	if !strings.Contains(f.out.String(), "Unknown command: upload") {
		t.Errorf("non-admins should not have the upload command:\n%s", f.out.String())
	}
}
