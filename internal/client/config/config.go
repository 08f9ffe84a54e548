// Package config はsmolhubクライアントの設定を読み込む。
//
// 優先順位は既定値、設定ファイル（YAML）、SMOLHUB_*環境変数の順。
// 設定ファイルの既定の場所は$XDG_CONFIG_HOME/smolhub/config.yaml。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/smolhub/internal/client/upload"
	"github.com/hitoshi/smolhub/internal/role"
)

// 既定値
const (
	DefaultAPIURL          = "http://localhost:8080"
	DefaultStepTimeout     = 30 * time.Second
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultPageSize        = 6
	DefaultLogLevel        = "warn"
)

// Config はクライアントの設定。
type Config struct {
	// Platform
	APIURL string
	APIKey string // downloadで使うアクセストークン。空の場合は匿名

	// Session
	CredentialsPath string

	// Role
	RolePolicy role.Policy

	// Upload
	IDPolicy    upload.IDPolicy
	Bucket      string
	MaxFileSize int64

	// Timeouts
	StepTimeout     time.Duration
	DownloadTimeout time.Duration

	// Download
	AllowPrivateNetwork bool // trueの場合はlocalhostやプライベートIPのAPI URLへのダウンロードを許可する

	// Shell
	PageSize int

	// Logging
	LogLevel string
}

// configFile は設定ファイルのスキーマ。
type configFile struct {
	APIURL          string `yaml:"api_url"`
	CredentialsPath string `yaml:"credentials_path"`
	Role            struct {
		Policy     string `yaml:"policy"`
		AdminEmail string `yaml:"admin_email"`
	} `yaml:"role"`
	Upload struct {
		IDPolicy    string `yaml:"id_policy"`
		Bucket      string `yaml:"bucket"`
		MaxFileSize int64  `yaml:"max_file_size"`
	} `yaml:"upload"`
	StepTimeout         string `yaml:"step_timeout"`
	DownloadTimeout     string `yaml:"download_timeout"`
	AllowPrivateNetwork *bool  `yaml:"allow_private_network"`
	PageSize            int    `yaml:"page_size"`
	LogLevel            string `yaml:"log_level"`
}

// DefaultPath は設定ファイルの既定の場所を返す。
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "smolhub", "config.yaml"), nil
}

// Load はpathの設定ファイルと環境変数からConfigを読み込む。
// pathが空の場合はSMOLHUB_CONFIG、それもなければDefaultPathを使う。
// 既定の場所にファイルがない場合は既定値と環境変数だけで構成する。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("SMOLHUB_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{
		APIURL:          DefaultAPIURL,
		CredentialsPath: filepath.Join(filepath.Dir(path), "credentials.json"),
		IDPolicy:        upload.IDDerived,
		Bucket:          upload.DefaultBucket,
		MaxFileSize:     upload.DefaultMaxFileSize,
		StepTimeout:     DefaultStepTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		PageSize:        DefaultPageSize,
		LogLevel:        DefaultLogLevel,
	}
	policyKind := string(role.KindRow)
	adminEmail := ""

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := applyFile(cfg, &f); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if f.Role.Policy != "" {
			policyKind = f.Role.Policy
		}
		adminEmail = f.Role.AdminEmail
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.APIURL = getEnvString("SMOLHUB_API_URL", cfg.APIURL)
	cfg.APIKey = getEnvString("SMOLHUB_API_KEY", cfg.APIKey)
	cfg.CredentialsPath = getEnvString("SMOLHUB_CREDENTIALS", cfg.CredentialsPath)
	cfg.Bucket = getEnvString("SMOLHUB_BUCKET", cfg.Bucket)
	cfg.MaxFileSize = getEnvInt64("SMOLHUB_MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.StepTimeout = getEnvDuration("SMOLHUB_STEP_TIMEOUT", cfg.StepTimeout)
	cfg.DownloadTimeout = getEnvDuration("SMOLHUB_DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	cfg.AllowPrivateNetwork = getEnvBool("SMOLHUB_ALLOW_PRIVATE_NETWORK", cfg.AllowPrivateNetwork)
	cfg.PageSize = getEnvInt("SMOLHUB_PAGE_SIZE", cfg.PageSize)
	cfg.LogLevel = getEnvString("SMOLHUB_LOG_LEVEL", cfg.LogLevel)
	policyKind = getEnvString("SMOLHUB_ROLE_POLICY", policyKind)
	adminEmail = getEnvString("SMOLHUB_ADMIN_EMAIL", adminEmail)

	idPolicy, err := upload.ParseIDPolicy(getEnvString("SMOLHUB_ID_POLICY", string(cfg.IDPolicy)))
	if err != nil {
		return nil, fmt.Errorf("invalid id policy: %w", err)
	}
	cfg.IDPolicy = idPolicy

	policy, err := role.ParsePolicy(policyKind, adminEmail)
	if err != nil {
		return nil, fmt.Errorf("invalid role policy: %w", err)
	}
	cfg.RolePolicy = policy

	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got %d", cfg.MaxFileSize)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	return cfg, nil
}

func applyFile(cfg *Config, f *configFile) error {
	if f.APIURL != "" {
		cfg.APIURL = f.APIURL
	}
	if f.CredentialsPath != "" {
		cfg.CredentialsPath = f.CredentialsPath
	}
	if f.Upload.IDPolicy != "" {
		cfg.IDPolicy = upload.IDPolicy(f.Upload.IDPolicy)
	}
	if f.Upload.Bucket != "" {
		cfg.Bucket = f.Upload.Bucket
	}
	if f.Upload.MaxFileSize > 0 {
		cfg.MaxFileSize = f.Upload.MaxFileSize
	}
	if f.StepTimeout != "" {
		d, err := time.ParseDuration(f.StepTimeout)
		if err != nil {
			return fmt.Errorf("step_timeout: %w", err)
		}
		cfg.StepTimeout = d
	}
	if f.DownloadTimeout != "" {
		d, err := time.ParseDuration(f.DownloadTimeout)
		if err != nil {
			return fmt.Errorf("download_timeout: %w", err)
		}
		cfg.DownloadTimeout = d
	}
	if f.AllowPrivateNetwork != nil {
		cfg.AllowPrivateNetwork = *f.AllowPrivateNetwork
	}
	if f.PageSize > 0 {
		cfg.PageSize = f.PageSize
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
