package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/smolhub/internal/model"
)

// AllowedExtensions はモデルファイルとして受け付ける拡張子。
var AllowedExtensions = []string{".bin", ".onnx", ".pt", ".pth", ".safetensors"}

// MaxReadmeSize はREADMEファイルの上限バイト数。カタログ行の一部としてJSONで送るため小さく抑える。
const MaxReadmeSize = 512 * 1024

// IDPolicy はモデル識別子の決め方。
type IDPolicy string

const (
	// IDDerived はモデル名から識別子を導出する（小文字化し、空白の連続をハイフンにする）。
	IDDerived IDPolicy = "derived"
	// IDSupplied は利用者が入力した識別子をそのまま使う。
	IDSupplied IDPolicy = "supplied"
)

// ParseIDPolicy は設定値からIDPolicyを返す。空の場合はIDDerived。
func ParseIDPolicy(s string) (IDPolicy, error) {
	switch IDPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDDerived:
		return IDDerived, nil
	case IDSupplied:
		return IDSupplied, nil
	default:
		return "", fmt.Errorf("unknown id policy %q (want derived or supplied)", s)
	}
}

// File はフォームで選択されたファイル。
type File struct {
	Name    string // 元のファイル名（ディレクトリを含まない）
	Size    int64
	Content io.Reader
}

// Form はアップロードフォームの入力。
type Form struct {
	Name       string
	UniqueID   string // IDSuppliedの場合のみ使う
	File       *File
	Readme     *File  // 任意
	UpdateDate string // YYYY-MM-DD
}

// NewForm はUpdateDateを今日の日付にしたフォームを返す。
func NewForm(now time.Time) Form {
	return Form{UpdateDate: now.Format(model.DateLayout)}
}

// OpenFile はローカルファイルを開いてFileにする。返されたos.Fileは呼び出し側がCloseすること。
func OpenFile(path string) (*File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{Name: filepath.Base(path), Size: info.Size(), Content: f}, f, nil
}

// DeriveID はモデル名から識別子を導出する。
func DeriveID(name string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// validated は検証済みのフォーム。
type validated struct {
	name       string
	uniqueID   string
	file       *File
	readme     *File
	updateDate time.Time
}

// validate は外部呼び出しを行わずにフォームを検証する。
func validate(form Form, policy IDPolicy, maxFileSize int64) (*validated, error) {
	if form.File == nil || form.File.Content == nil {
		return nil, model.NewValidationError("Please select a model file")
	}

	name := strings.TrimSpace(form.Name)
	if name == "" {
		return nil, model.NewValidationError("Please enter a model name")
	}

	fileName := form.File.Name
	if fileName == "" || fileName != filepath.Base(fileName) || strings.ContainsAny(fileName, `/\`) {
		return nil, model.NewValidationError("Invalid model file name")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !slices.Contains(AllowedExtensions, ext) {
		return nil, model.NewValidationError(fmt.Sprintf(
			"Unsupported model file type %q. Allowed: %s", ext, strings.Join(AllowedExtensions, " ")))
	}
	if form.File.Size <= 0 {
		return nil, model.NewValidationError("The model file is empty")
	}
	if maxFileSize > 0 && form.File.Size > maxFileSize {
		return nil, model.NewValidationError(fmt.Sprintf(
			"File exceeds the maximum size of %d MB", maxFileSize/1024/1024))
	}

	var uniqueID string
	switch policy {
	case IDSupplied:
		uniqueID = strings.TrimSpace(form.UniqueID)
		if uniqueID == "" {
			return nil, model.NewValidationError("Please enter a model ID")
		}
	default:
		uniqueID = DeriveID(name)
	}
	if strings.Contains(uniqueID, "/") {
		return nil, model.NewValidationError("Model ID must not contain '/'")
	}

	updateDate, err := time.Parse(model.DateLayout, strings.TrimSpace(form.UpdateDate))
	if err != nil {
		return nil, model.NewValidationError("Update date must be YYYY-MM-DD")
	}

	if form.Readme != nil {
		if form.Readme.Content == nil {
			return nil, model.NewValidationError("README file cannot be read")
		}
		if form.Readme.Size > MaxReadmeSize {
			return nil, model.NewValidationError(fmt.Sprintf(
				"README exceeds the maximum size of %d KB", MaxReadmeSize/1024))
		}
	}

	return &validated{
		name:       name,
		uniqueID:   uniqueID,
		file:       form.File,
		readme:     form.Readme,
		updateDate: updateDate,
	}, nil
}

// readText はREADMEファイルをテキストとして読み込む。
func readText(f *File) (string, error) {
	b, err := io.ReadAll(io.LimitReader(f.Content, MaxReadmeSize+1))
	if err != nil {
		return "", err
	}
	if len(b) > MaxReadmeSize {
		return "", fmt.Errorf("README exceeds %d KB", MaxReadmeSize/1024)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("README is not valid UTF-8 text")
	}
	return string(b), nil
}
