// Package shell は端末上のsmolhubクライアントを提供する。
//
// Shellはプロセスの間ずっとSession Storeを1つ保持し、ページ遷移とSessionの変更を
// 全てRoute Guardに通してから表示する。コマンドはREPLで1行ずつ読む。
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hitoshi/smolhub/internal/client/authflow"
	"github.com/hitoshi/smolhub/internal/client/guard"
	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/client/upload"
	"github.com/hitoshi/smolhub/internal/model"
)

// maxRedirects は1回の遷移で追従するリダイレクトの上限。
const maxRedirects = 4

// SessionStore はShellが保持するSession Store。
type SessionStore interface {
	Init(ctx context.Context) error
	Current() model.Session
	OnChange(fn func(model.Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
	Dispose()
}

// AuthFlow はAuthページの送信処理。
type AuthFlow interface {
	Handle(ctx context.Context, req authflow.Request) error
	ConfirmEmail(ctx context.Context, tokenHash, kind string) (handled bool, err error)
	AdminToggleAvailable() bool
}

// Catalog はページが表示する行の参照。
type Catalog interface {
	ListModels(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error)
	FindModel(ctx context.Context, uniqueID string) (*model.ModelArtifact, error)
	Profile(ctx context.Context, id string) (*model.Profile, error)
}

// Uploader はUpload Pipeline。
type Uploader interface {
	Submit(ctx context.Context, form upload.Form) (*model.ModelArtifact, error)
	IDPolicy() upload.IDPolicy
	MaxFileSize() int64
}

// Downloader はモデルファイルのダウンロード。
type Downloader interface {
	Download(ctx context.Context, modelID, outputDir string) (string, error)
}

// Sanitizer はREADMEを表示用に無害化する。
type Sanitizer interface {
	Sanitize(markdown string) string
}

// Deps はShellの依存。Downloaderは省略できる。
type Deps struct {
	Store      SessionStore
	Auth       AuthFlow
	Catalog    Catalog
	Uploader   Uploader
	Downloader Downloader
	Sanitizer  Sanitizer
	Surface    *notify.Terminal
}

// Options はShellの入出力と設定。
// Inが*bufio.Readerの場合はそのまま使うため、TerminalPasswordと同じReaderを渡せば
// パスワード入力と行入力でバッファを共有できる。
type Options struct {
	In       io.Reader
	Out      io.Writer
	Password PasswordReader // nilの場合はInから1行読む
	PageSize int
	Logger   *slog.Logger
	Now      func() time.Time
}

// Shell は端末クライアント。
type Shell struct {
	deps     Deps
	in       *bufio.Reader
	out      io.Writer
	password PasswordReader
	pageSize int
	logger   *slog.Logger
	style    styles
	now      func() time.Time

	// ctx はRunに渡されたコンテキスト。Navigateはページ遷移の通知から呼ばれるため引数に取らない。
	ctx context.Context

	path    string
	history []string
	page    int // ホームページのページ番号（0始まり）
	changed atomic.Bool
	quit    bool
}

// New はShellを生成する。
func New(deps Deps, opts Options) *Shell {
	if opts.PageSize <= 0 {
		opts.PageSize = 6
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Shell{
		deps:     deps,
		in:       bufio.NewReader(opts.In),
		out:      opts.Out,
		pageSize: opts.PageSize,
		logger:   opts.Logger,
		style:    newStyles(opts.Out),
		now:      opts.Now,
		ctx:      context.Background(),
	}
	s.password = opts.Password
	if s.password == nil {
		s.password = func() ([]byte, error) {
			line, err := readLine(s.in)
			return []byte(line), err
		}
	}
	return s
}

// Path は表示中のパスを返す。
func (s *Shell) Path() string {
	return s.path
}

// Run はSession Storeを初期化し、startを表示してからREPLを実行する。
// 入力の終わり、exit、またはctxのキャンセルで終了し、Session Storeを破棄する。
func (s *Shell) Run(ctx context.Context, start string) error {
	s.ctx = ctx
	defer s.deps.Store.Dispose()

	unsubscribe := s.deps.Store.OnChange(func(model.Session) {
		s.changed.Store(true)
	})
	defer unsubscribe()

	if err := s.deps.Store.Init(ctx); err != nil {
		s.notice(notify.LevelError, "Could not restore your session: "+notify.ErrorMessage(err))
	}

	if start == "" {
		start = guard.PathHome
	}
	s.Navigate(start)

	for !s.quit {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(s.out, s.promptLine())
		line, err := s.in.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		s.handleLine(ctx, strings.TrimSpace(line))
		s.rerouteIfChanged()
	}
	return nil
}

func (s *Shell) promptLine() string {
	if s.deps.Surface != nil && s.deps.Surface.Pending() {
		return ""
	}
	return fmt.Sprintf("smolhub %s> ", s.path)
}

// handleLine は1行のコマンドを実行する。
func (s *Shell) handleLine(ctx context.Context, line string) {
	if s.deps.Surface != nil && s.deps.Surface.Pending() {
		if line == "" {
			s.deps.Surface.Close()
			return
		}
		fmt.Fprintln(s.out, s.style.Help.Render("Press Enter to close the dialog."))
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return
	case "go":
		if len(args) != 1 {
			s.notice(notify.LevelError, "usage: go <path>")
			return
		}
		s.Navigate(args[0])
		return
	case "back":
		s.Back()
		return
	case "refresh":
		s.show(s.path)
		return
	case "exit", "quit":
		fmt.Fprintln(s.out, "Bye!")
		s.quit = true
		return
	}

	if !s.pageCommand(ctx, cmd, args) {
		fmt.Fprintf(s.out, "Unknown command: %s (type help)\n", cmd)
	}
}

// Navigate はpathへ遷移する。表示中のパスは履歴に積む。
func (s *Shell) Navigate(path string) {
	if s.path != "" && s.path != path {
		s.history = append(s.history, s.path)
	}
	if path != s.path {
		s.page = 0
	}
	s.show(path)
}

// Back は履歴を1つ戻る。
func (s *Shell) Back() {
	if len(s.history) == 0 {
		s.notice(notify.LevelInfo, "No previous page.")
		return
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.page = 0
	s.show(prev)
}

// show はRoute Guardの判定に従ってpathを表示する。リダイレクトは履歴に積まない。
func (s *Shell) show(path string) {
	s.changed.Store(false)
	session := s.deps.Store.Current()

	for range maxRedirects {
		d := guard.Decide(path, session)
		switch d.Action {
		case guard.ActionPlaceholder:
			s.path = path
			fmt.Fprintln(s.out, s.style.Help.Render("Loading..."))
			return
		case guard.ActionNotFound:
			s.path = path
			fmt.Fprintln(s.out, s.style.Error.Render("Page not found: "+path))
			fmt.Fprintln(s.out, s.style.Help.Render("Type `go /` to return home."))
			return
		case guard.ActionRedirect:
			s.logger.Debug("route redirected", slog.String("from", path), slog.String("to", d.Target))
			path = d.Target
			continue
		case guard.ActionRender:
			s.path = path
			s.render(d, session)
			return
		}
	}
	s.logger.Warn("too many redirects", slog.String("path", path))
}

// rerouteIfChanged はコマンドの実行中にSessionが変わっていた場合、表示中のパスを判定し直す。
func (s *Shell) rerouteIfChanged() {
	if s.changed.Swap(false) {
		s.show(s.path)
	}
}

// render はページを表示する。
func (s *Shell) render(d guard.Decision, session model.Session) {
	ctx := s.ctx
	switch d.Page {
	case guard.PageAuth:
		s.renderAuth(ctx, d.Params)
	case guard.PageHome:
		s.renderHome(ctx, session)
	case guard.PageModel:
		s.renderModel(ctx, d.Params["id"])
	case guard.PageProfile:
		s.renderProfile(ctx, session)
	case guard.PageUpload:
		s.renderUpload(session)
	}
}

// pageCommand は表示中のページのコマンドを実行する。該当するコマンドがなければfalse。
func (s *Shell) pageCommand(ctx context.Context, cmd string, args []string) bool {
	session := s.deps.Store.Current()
	d := guard.Decide(s.path, session)
	if d.Action != guard.ActionRender {
		return false
	}

	switch d.Page {
	case guard.PageAuth:
		return s.authCommand(ctx, cmd, args)
	case guard.PageHome:
		return s.homeCommand(ctx, session, cmd, args)
	case guard.PageModel:
		return s.modelCommand(ctx, session, d.Params["id"], cmd, args)
	case guard.PageProfile:
		return s.profileCommand(ctx, session, cmd)
	case guard.PageUpload:
		return s.uploadCommand(ctx, session, cmd)
	}
	return false
}

// menuCommand はサインイン中の全ページで使えるユーザーメニューのコマンド。
func (s *Shell) menuCommand(ctx context.Context, session model.Session, cmd string) bool {
	switch cmd {
	case "profile":
		s.Navigate(guard.PathProfile)
	case "upload":
		if !session.IsAdmin() {
			return false
		}
		s.Navigate(guard.PathUpload)
	case "signout":
		s.signOut(ctx)
	case "home":
		s.Navigate(guard.PathHome)
	default:
		return false
	}
	return true
}

func (s *Shell) signOut(ctx context.Context) {
	if err := s.deps.Store.SignOut(ctx); err != nil {
		s.logger.Warn("sign-out reported an error", slog.String("error", err.Error()))
	}
	s.Navigate(guard.PathAuth)
}

func (s *Shell) printHelp() {
	lines := []string{
		"go <path>   open a page (/, /model/<id>, /profile, /upload-model, /auth)",
		"back        return to the previous page",
		"refresh     show the current page again",
		"exit        leave smolhub",
	}
	session := s.deps.Store.Current()
	d := guard.Decide(s.path, session)
	if d.Action == guard.ActionRender {
		lines = append(pageHelp(d.Page, session), lines...)
	}
	for _, l := range lines {
		fmt.Fprintln(s.out, "  "+l)
	}
}

func (s *Shell) notice(level notify.Level, msg string) {
	if s.deps.Surface != nil {
		s.deps.Surface.Notify(notify.Notice{Level: level, Message: msg})
		return
	}
	fmt.Fprintln(s.out, msg)
}

// fail は操作の失敗をインラインで表示する。
func (s *Shell) fail(err error) {
	s.notice(notify.LevelError, notify.ErrorMessage(err))
}
