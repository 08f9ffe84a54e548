package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// PasswordReader は入力をエコーせずにパスワードを1つ読む。
type PasswordReader func() ([]byte, error)

// TerminalPassword はstdinが端末の場合にエコーなしで読むPasswordReaderを返す。
// 端末でない場合（パイプなど）はreaderから1行読む。
func TerminalPassword(stdin *os.File, reader *bufio.Reader) PasswordReader {
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() ([]byte, error) {
			line, err := readLine(reader)
			return []byte(line), err
		}
	}
	return func() ([]byte, error) {
		return readPassword(fd)
	}
}

// readLine は1行読み、前後の空白を除いて返す。
// EOFの前に入力があった場合はその行を返す。
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// prompt はpromptを表示して1行読む。
func (s *Shell) prompt(label string) (string, error) {
	if _, err := fmt.Fprintf(s.out, "%s: ", label); err != nil {
		return "", err
	}
	return readLine(s.in)
}

// promptDefault はpromptを表示して1行読む。空の場合はdefを返す。
func (s *Shell) promptDefault(label, def string) (string, error) {
	if _, err := fmt.Fprintf(s.out, "%s [%s]: ", label, def); err != nil {
		return "", err
	}
	v, err := readLine(s.in)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// promptYesNo はy/nを尋ねる。y以外はfalse。
func (s *Shell) promptYesNo(label string) (bool, error) {
	v, err := s.prompt(label + " (y/N)")
	if err != nil {
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}

// promptPassword はパスワードをエコーなしで読む。
func (s *Shell) promptPassword(label string) (string, error) {
	if _, err := fmt.Fprintf(s.out, "%s: ", label); err != nil {
		return "", err
	}
	pw, err := s.password()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
