// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// リフレッシュトークンの有効期限を過ぎたsessions行は二度と使われないため、
// 猶予期間を置いてからバッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionPurgeJob は期限切れセッションの削除ジョブ。
// 削除対象がなくてもエラーにならないため、何度実行してもよい。
type SessionPurgeJob struct {
	db         Executor
	logger     *slog.Logger
	GraceHours int // 期限切れ後に行を残しておく時間（デフォルト: 24）
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。
func NewSessionPurgeJob(db Executor, logger *slog.Logger) *SessionPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPurgeJob{
		db:         db,
		logger:     logger,
		GraceHours: 24,
	}
}

// Run はexpires_atからGraceHours時間以上経過したセッションを削除する。
func (j *SessionPurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d hours", j.GraceHours)

	query := `DELETE FROM sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("セッション削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_hours", j.GraceHours),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッション削除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("grace_hours", j.GraceHours),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回Runを実行し、以後intervalごとに繰り返す。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに残して次回に持ち越す。
func (j *SessionPurgeJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *SessionPurgeJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("セッション削除は次回に再試行します", slog.String("error", err.Error()))
	}
}
