// Package notify は非同期処理の結果を利用者に知らせる確認・通知の表示面を提供する。
package notify

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hitoshi/smolhub/internal/model"
)

// Level は通知の重要度。
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice はインラインのバナー通知。
type Notice struct {
	Level   Level
	Message string
}

// Confirmation は利用者が閉じるまで表示し続ける確認ダイアログ。
// OnCloseは閉じられたときに1回だけ呼ばれる。
type Confirmation struct {
	Title   string
	Lines   []string
	OnClose func()
}

// Surface は確認・通知の表示面。
type Surface interface {
	Confirm(c Confirmation)
	Notify(n Notice)
}

// CheckEmail はサインアップ後のメール確認を促すConfirmationを返す。
func CheckEmail(email string, onClose func()) Confirmation {
	return Confirmation{
		Title: "Check your email",
		Lines: []string{
			"We've sent a confirmation link to:",
			email,
			"Click the link in the email to verify your account. If you don't see it, check your spam folder.",
		},
		OnClose: onClose,
	}
}

// Terminal は端末向けのSurface。
// Confirmは内容を書き出したうえで、次にCloseが呼ばれるまで保留する。
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	pending *Confirmation
}

// NewTerminal はwに書き出すTerminalを生成する。
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Confirm は確認ダイアログを表示する。前の確認が保留中の場合はそれを閉じてから表示する。
func (t *Terminal) Confirm(c Confirmation) {
	t.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	rule := strings.Repeat("-", 40)
	fmt.Fprintln(t.w, rule)
	fmt.Fprintf(t.w, "  %s\n", c.Title)
	for _, line := range c.Lines {
		fmt.Fprintf(t.w, "  %s\n", line)
	}
	fmt.Fprintln(t.w, "  [press Enter to close]")
	fmt.Fprintln(t.w, rule)
	t.pending = &c
}

// Notify はバナー通知を1行で表示する。
func (t *Terminal) Notify(n Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := "info"
	switch n.Level {
	case LevelSuccess:
		prefix = "ok"
	case LevelError:
		prefix = "error"
	}
	fmt.Fprintf(t.w, "[%s] %s\n", prefix, n.Message)
}

// Pending は閉じられていない確認があるかどうかを返す。
func (t *Terminal) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Close は保留中の確認を閉じ、OnCloseを呼ぶ。保留中の確認がなければ何もしない。
func (t *Terminal) Close() bool {
	t.mu.Lock()
	c := t.pending
	t.pending = nil
	t.mu.Unlock()

	if c == nil {
		return false
	}
	if c.OnClose != nil {
		c.OnClose()
	}
	return true
}

// ErrorMessage はerrをインラインバナーに表示する1つのメッセージに変換する。
// APIErrorの場合はそのMessageをそのまま使う。
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
