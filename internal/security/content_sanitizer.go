// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はアップロード者が書いたREADMEを端末に表示する前に無害化する。
// READMEはMarkdownとして扱い、埋め込まれたHTMLはbluemondayのStrictPolicyでタグを除去して
// テキストだけを残す。フェンスで囲まれたコードブロックはタグ除去の対象外とする。
// 端末の表示を乗っ取るエスケープシーケンスを防ぐため、改行とタブ以外の制御文字は全て除去する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はREADMEの無害化機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はREADMEを端末表示用に無害化する。
	// 空文字列の入力には空文字列を返す。
	Sanitize(markdown string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// script, styleなどの要素はbluemondayの既定で中身ごと除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はREADMEを端末表示用に無害化する。
func (s *contentSanitizer) Sanitize(markdown string) string {
	if markdown == "" {
		return ""
	}

	text := stripControl(strings.ReplaceAll(markdown, "\r\n", "\n"))

	var out strings.Builder
	var prose strings.Builder
	flush := func() {
		if prose.Len() == 0 {
			return
		}
		out.WriteString(s.stripTags(prose.String()))
		prose.Reset()
	}

	fence := ""
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		switch {
		case fence == "" && isFence(trimmed):
			flush()
			fence = trimmed[:3]
			out.WriteString(line)
		case fence != "":
			out.WriteString(line)
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
		default:
			prose.WriteString(line)
		}
	}
	flush()

	return out.String()
}

// stripTags はHTMLタグを除去する。bluemondayが実体参照にした文字は元に戻す。
func (s *contentSanitizer) stripTags(text string) string {
	return html.UnescapeString(s.policy.Sanitize(text))
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

// stripControl は改行とタブ以外の制御文字を除去する。
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' {
			return -1
		}
		return r
	}, s)
}
