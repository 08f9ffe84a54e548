package shell

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/smolhub/internal/client/authflow"
	"github.com/hitoshi/smolhub/internal/client/guard"
	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/client/upload"
	"github.com/hitoshi/smolhub/internal/model"
)

// MessageAdminOnly は管理者以外がアップロードページを開いたときの表示。
const MessageAdminOnly = "Only administrators can upload models."

func pageHelp(page guard.Page, session model.Session) []string {
	var lines []string
	switch page {
	case guard.PageAuth:
		lines = []string{
			"signin           sign in with email and password",
			"signup           create an account",
			"confirm <link>   open an email confirmation link",
		}
	case guard.PageHome:
		lines = []string{
			"open <id|n>      open a model page",
			"next / prev      change the catalog page",
			"menu             show your account menu",
		}
	case guard.PageModel:
		lines = []string{"download [dir]   save the model file (default: current directory)"}
	case guard.PageProfile:
		lines = []string{"signout          sign out"}
	case guard.PageUpload:
		if session.IsAdmin() {
			lines = []string{"submit           fill in the upload form"}
		}
	}
	if page != guard.PageAuth {
		menu := "home / profile / signout"
		if session.IsAdmin() {
			menu = "home / profile / upload / signout"
		}
		lines = append(lines, fmt.Sprintf("%-16s %s", menu, "account menu"))
	}
	return lines
}

// --- auth ---

func (s *Shell) renderAuth(ctx context.Context, params map[string]string) {
	if tokenHash, kind := params["token_hash"], params["type"]; tokenHash != "" {
		handled, err := s.deps.Auth.ConfirmEmail(ctx, tokenHash, kind)
		if handled && err == nil {
			return
		}
		if err != nil {
			s.fail(err)
		}
	}

	fmt.Fprintln(s.out, s.style.Title.Render("🚀 SmolHub"))
	fmt.Fprintln(s.out, s.style.Header.Render("Welcome to SmolHub"))
	fmt.Fprintln(s.out, s.style.Help.Render("Type `signin` or `signup`. Paste a confirmation link with `confirm <link>`."))
}

func (s *Shell) authCommand(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "signin":
		s.submitAuth(ctx, authflow.ModeSignIn)
	case "signup":
		s.submitAuth(ctx, authflow.ModeSignUp)
	case "confirm":
		if len(args) != 1 {
			s.notice(notify.LevelError, "usage: confirm <link>")
			return true
		}
		s.confirmLink(args[0])
	default:
		return false
	}
	return true
}

func (s *Shell) submitAuth(ctx context.Context, mode authflow.Mode) {
	req := authflow.Request{Mode: mode}
	var err error
	if req.Email, err = s.prompt("Email"); err != nil {
		return
	}
	if req.Password, err = s.promptPassword("Password"); err != nil {
		return
	}
	if mode == authflow.ModeSignUp && s.deps.Auth.AdminToggleAvailable() {
		if req.AsAdmin, err = s.promptYesNo("Register as administrator?"); err != nil {
			return
		}
	}

	if err := s.deps.Auth.Handle(ctx, req); err != nil {
		s.fail(err)
	}
}

// confirmLink は確認メールのリンクのクエリ文字列を付けてAuthページを開き直す。
func (s *Shell) confirmLink(link string) {
	u, err := url.Parse(link)
	if err != nil || u.RawQuery == "" {
		s.notice(notify.LevelError, "The link does not contain a confirmation token.")
		return
	}
	s.Navigate(guard.PathAuth + "?" + u.RawQuery)
}

// --- home ---

func (s *Shell) renderHome(ctx context.Context, session model.Session) {
	s.printHeader(session)

	rows, err := s.deps.Catalog.ListModels(ctx, s.pageSize+1, s.page*s.pageSize)
	if err != nil {
		s.fail(err)
		return
	}
	hasNext := len(rows) > s.pageSize
	if hasNext {
		rows = rows[:s.pageSize]
	}

	fmt.Fprintln(s.out, s.style.Header.Render("Models"))
	if len(rows) == 0 {
		fmt.Fprintln(s.out, s.style.Help.Render("  No models yet."))
	}
	for i, a := range rows {
		fmt.Fprintf(s.out, "  %d. %s  %s\n", i+1, s.style.Link.Render(a.UniqueID), a.Name)
		fmt.Fprintf(s.out, "     %s\n", s.style.Label.Render(
			fmt.Sprintf("Updated %s • %s", a.UpdateDate.Format(model.DateLayout), upload.FormatSize(a.SizeBytes))))
	}

	var nav []string
	if s.page > 0 {
		nav = append(nav, "prev")
	}
	nav = append(nav, fmt.Sprintf("page %d", s.page+1))
	if hasNext {
		nav = append(nav, "next")
	}
	fmt.Fprintln(s.out, s.style.Help.Render("  "+strings.Join(nav, " | ")))
}

func (s *Shell) homeCommand(ctx context.Context, session model.Session, cmd string, args []string) bool {
	switch cmd {
	case "next":
		s.page++
		s.show(s.path)
	case "prev":
		if s.page > 0 {
			s.page--
		}
		s.show(s.path)
	case "open":
		if len(args) != 1 {
			s.notice(notify.LevelError, "usage: open <id|n>")
			return true
		}
		s.openModel(ctx, args[0])
	case "menu":
		s.printMenu(ctx, session)
	default:
		return s.menuCommand(ctx, session, cmd)
	}
	return true
}

// openModel はIDまたは一覧の番号でモデルページを開く。
func (s *Shell) openModel(ctx context.Context, arg string) {
	if n, err := strconv.Atoi(arg); err == nil && n > 0 && n <= s.pageSize {
		rows, err := s.deps.Catalog.ListModels(ctx, s.pageSize, s.page*s.pageSize)
		if err != nil {
			s.fail(err)
			return
		}
		if n <= len(rows) {
			s.Navigate(guard.ModelPath(rows[n-1].UniqueID))
			return
		}
	}
	s.Navigate(guard.ModelPath(arg))
}

// printHeader はサイト名とサインイン中のユーザーを1行で表示する。
func (s *Shell) printHeader(session model.Session) {
	line := s.style.Title.Render("🚀 SmolHub")
	if session.Identity != nil {
		line += "  " + session.Identity.Email
		if session.IsAdmin() {
			line += " " + s.style.Badge.Render("Admin")
		}
	}
	fmt.Fprintln(s.out, line)
}

// printMenu はユーザーメニューを表示する。「Upload Model」は管理者にだけ表示する。
func (s *Shell) printMenu(ctx context.Context, session model.Session) {
	if session.Identity == nil {
		return
	}
	fmt.Fprintln(s.out, session.Identity.Email)
	if session.IsAdmin() {
		fmt.Fprintln(s.out, s.style.Badge.Render("Admin"))
	}
	if p, err := s.deps.Catalog.Profile(ctx, session.Identity.ID); err == nil && p != nil {
		fmt.Fprintln(s.out, s.style.Label.Render("Joined "+p.CreatedAt.Format(model.DateLayout)))
	}
	fmt.Fprintln(s.out, "  profile   View Profile")
	if session.IsAdmin() {
		fmt.Fprintln(s.out, "  upload    Upload Model")
	}
	fmt.Fprintln(s.out, "  signout   Sign Out")
}

// --- model ---

func (s *Shell) renderModel(ctx context.Context, id string) {
	a, err := s.deps.Catalog.FindModel(ctx, id)
	if err != nil {
		s.fail(err)
		return
	}
	if a == nil {
		fmt.Fprintln(s.out, s.style.Error.Render("Model not found: "+id))
		return
	}

	fmt.Fprintln(s.out, s.style.Title.Render(a.Name))
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("ID:     "), a.UniqueID)
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("Updated:"), a.UpdateDate.Format(model.DateLayout))
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("Size:   "), upload.FormatSize(a.SizeBytes))
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("File:   "), a.FilePath)
	fmt.Fprintln(s.out)

	readme := a.ReadmeContent
	if s.deps.Sanitizer != nil {
		readme = s.deps.Sanitizer.Sanitize(readme)
	}
	if strings.TrimSpace(readme) == "" {
		fmt.Fprintln(s.out, s.style.Help.Render("  No README."))
		return
	}
	fmt.Fprintln(s.out, s.style.Readme.Render(readme))
}

func (s *Shell) modelCommand(ctx context.Context, session model.Session, id, cmd string, args []string) bool {
	if cmd != "download" {
		return s.menuCommand(ctx, session, cmd)
	}
	if s.deps.Downloader == nil {
		return false
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dest, err := s.deps.Downloader.Download(ctx, id, dir)
	if err != nil {
		s.fail(err)
		return true
	}
	s.notice(notify.LevelSuccess, "Model downloaded successfully to: "+dest)
	return true
}

// --- profile ---

func (s *Shell) renderProfile(ctx context.Context, session model.Session) {
	s.printHeader(session)
	fmt.Fprintln(s.out, s.style.Header.Render("Profile Details"))

	p, err := s.deps.Catalog.Profile(ctx, session.Identity.ID)
	if err != nil {
		s.fail(err)
		return
	}

	email := session.Identity.Email
	if p != nil && p.Email != "" {
		email = p.Email
	}
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("Email:"), email)
	if p != nil {
		fmt.Fprintf(s.out, "%s\n", s.style.Label.Render("Joined "+p.CreatedAt.Format(model.DateLayout)))
	}
	roleLabel := "User"
	if session.IsAdmin() {
		roleLabel = s.style.Badge.Render("Admin")
	}
	fmt.Fprintf(s.out, "%s %s\n", s.style.Label.Render("Role: "), roleLabel)
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, s.style.Header.Render("Account Settings"))
	fmt.Fprintln(s.out, "  signout   Sign Out")
}

func (s *Shell) profileCommand(ctx context.Context, session model.Session, cmd string) bool {
	return s.menuCommand(ctx, session, cmd)
}

// --- upload ---

func (s *Shell) renderUpload(session model.Session) {
	s.printHeader(session)
	fmt.Fprintln(s.out, s.style.Header.Render("Upload Model"))

	if !session.IsAdmin() {
		s.notice(notify.LevelInfo, MessageAdminOnly)
		return
	}

	fmt.Fprintf(s.out, "  Allowed files: %s (max %s)\n",
		strings.Join(upload.AllowedExtensions, " "), upload.FormatSize(s.deps.Uploader.MaxFileSize()))
	if s.deps.Uploader.IDPolicy() == upload.IDDerived {
		fmt.Fprintln(s.out, "  The model ID is derived from the name (lowercase, spaces become '-').")
	}
	fmt.Fprintln(s.out, s.style.Help.Render("  Type `submit` to fill in the form."))
}

func (s *Shell) uploadCommand(ctx context.Context, session model.Session, cmd string) bool {
	if cmd != "submit" {
		return s.menuCommand(ctx, session, cmd)
	}
	if !session.IsAdmin() {
		s.notice(notify.LevelError, MessageAdminOnly)
		return true
	}

	created, err := s.submitUpload(ctx)
	if err != nil {
		s.notice(notify.LevelError, upload.Message(err))
		return true
	}
	s.notice(notify.LevelSuccess, "Model uploaded: "+created.UniqueID)
	s.Navigate(guard.PathHome)
	return true
}

// submitUpload はフォームを1項目ずつ尋ねてUpload Pipelineに渡す。
func (s *Shell) submitUpload(ctx context.Context) (*model.ModelArtifact, error) {
	form := upload.NewForm(s.now())
	var err error

	if form.Name, err = s.prompt("Model name"); err != nil {
		return nil, err
	}
	if s.deps.Uploader.IDPolicy() == upload.IDSupplied {
		if form.UniqueID, err = s.promptDefault("Model ID", upload.DeriveID(strings.TrimSpace(form.Name))); err != nil {
			return nil, err
		}
	}

	filePath, err := s.prompt("Model file path")
	if err != nil {
		return nil, err
	}
	if filePath != "" {
		f, closer, err := upload.OpenFile(filePath)
		if err != nil {
			return nil, model.NewValidationError("Cannot open model file: " + err.Error())
		}
		defer closer.Close()
		form.File = f
	}

	readmePath, err := s.prompt("README file (.md, optional)")
	if err != nil {
		return nil, err
	}
	if readmePath != "" {
		f, closer, err := upload.OpenFile(readmePath)
		if err != nil {
			return nil, model.NewValidationError("Cannot open README file: " + err.Error())
		}
		defer closer.Close()
		form.Readme = f
	}

	if form.UpdateDate, err = s.promptDefault("Update date", form.UpdateDate); err != nil {
		return nil, err
	}

	return s.deps.Uploader.Submit(ctx, form)
}
