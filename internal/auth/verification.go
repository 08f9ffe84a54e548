package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrVerificationNotFound は確認トークンが存在しないか期限切れの場合のエラー。
var ErrVerificationNotFound = errors.New("verification token not found")

// VerificationStore はメール確認トークンの保存先。
// トークンは一度だけ引き換えられる。
type VerificationStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Redeem(ctx context.Context, tokenHash string) (string, error)
}

// ConnectRedis はredis:// 形式のURLまたはhost:port からクライアントを生成する。
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisVerificationStore はRedisにTTL付きで確認トークンを保存する。
type RedisVerificationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisVerificationStore はRedisVerificationStoreを生成する。
func NewRedisVerificationStore(rdb *redis.Client, ttl time.Duration) *RedisVerificationStore {
	return &RedisVerificationStore{rdb: rdb, ttl: ttl}
}

func verificationKey(tokenHash string) string {
	return "smolhub:verify:" + tokenHash
}

// Create はユーザーIDに紐づく確認トークンを発行する。
func (s *RedisVerificationStore) Create(ctx context.Context, userID string) (string, error) {
	for range 3 {
		token, err := generateOpaqueToken()
		if err != nil {
			return "", fmt.Errorf("generate verification token: %w", err)
		}
		ok, err := s.rdb.SetNX(ctx, verificationKey(token), userID, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("store verification token in redis: %w", err)
		}
		if ok {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique verification token")
}

// Redeem は確認トークンを消費してユーザーIDを返す。
func (s *RedisVerificationStore) Redeem(ctx context.Context, tokenHash string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, verificationKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrVerificationNotFound
		}
		return "", fmt.Errorf("retrieve verification token from redis: %w", err)
	}
	return userID, nil
}

// Mailer は確認メールの送信インターフェース。
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// LogMailer は確認リンクを構造化ログに出力するMailer。
// 開発環境とセルフホスト環境で使う。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendConfirmation は確認リンクをログに出力する。
func (m *LogMailer) SendConfirmation(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "確認メールを送信しました",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}

// ConfirmationLink はクライアントの/authページで処理される確認リンクを組み立てる。
func ConfirmationLink(baseURL, tokenHash string) string {
	q := url.Values{}
	q.Set("token_hash", tokenHash)
	q.Set("type", VerifyTypeEmailConfirmation)
	return strings.TrimRight(baseURL, "/") + "/auth?" + q.Encode()
}
