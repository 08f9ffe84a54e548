package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
)

// CredentialStore はサインイン中の資格情報を保存する。
// 保存されていない場合、Loadは(nil, nil)を返す。
type CredentialStore interface {
	Load() (*model.Identity, error)
	Save(identity *model.Identity) error
	Clear() error
}

// credentialsFile は資格情報ファイルのJSON表現。
type credentialsFile struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FileCredentialStore は資格情報を所有者のみ読み書きできるJSONファイルに保存する。
// pathが空の場合は何も永続化しない。
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore はFileCredentialStoreを生成する。
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Path は資格情報ファイルのパスを返す。
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Load は資格情報ファイルを読み込む。
func (s *FileCredentialStore) Load() (*model.Identity, error) {
	if s.path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var f credentialsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", s.path, err)
	}
	if f.UserID == "" || f.RefreshToken == "" {
		return nil, nil
	}
	return &model.Identity{
		ID:           f.UserID,
		Email:        f.Email,
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
		ExpiresAt:    f.ExpiresAt,
	}, nil
}

// Save は資格情報を一時ファイルに書き出してから置き換える。
func (s *FileCredentialStore) Save(identity *model.Identity) error {
	if s.path == "" || identity == nil {
		return nil
	}
	b, err := json.MarshalIndent(credentialsFile{
		UserID:       identity.ID,
		Email:        identity.Email,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		ExpiresAt:    identity.ExpiresAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Clear は資格情報ファイルを削除する。存在しない場合は何もしない。
func (s *FileCredentialStore) Clear() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
