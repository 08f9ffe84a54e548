// Package session はクライアントプロセス全体で1つだけ持つSession Storeを提供する。
//
// Storeは外部IdP（IdentitySource）の資格情報変更を1本だけ購読し、
// 変更のたびにSessionを丸ごと置き換えてRoleを導出し直す。
// Roleはキャッシュしないため、サインアウト後に再サインインした場合も必ず再導出される。
//
// ライフサイクルはNewStore → Init → Disposeで、Disposeは何度呼んでも購読解除を1回だけ行う。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/smolhub/internal/model"
)

// DefaultFetchTimeout は資格情報の取得とRole導出のタイムアウトの既定値。
const DefaultFetchTimeout = 30 * time.Second

// ErrDisposed はDispose済みのStoreを初期化しようとした場合に返される。
var ErrDisposed = errors.New("session store is disposed")

// IdentitySource はStoreが必要とする外部IdPの操作。
type IdentitySource interface {
	GetCurrentIdentity(ctx context.Context) (*model.Identity, error)
	OnIdentityChange(fn func(model.IdentityEvent)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// RoleResolver はIdentityからRoleを導出する。
type RoleResolver interface {
	Resolve(ctx context.Context, identity *model.Identity) (model.Role, error)
}

// Options はStoreの設定。
type Options struct {
	FetchTimeout time.Duration // 0の場合はDefaultFetchTimeout
	Logger       *slog.Logger  // nilの場合はslog.Default()
}

// Store はSession Store。ゼロ値では使えないため、NewStoreで生成すること。
type Store struct {
	source   IdentitySource
	resolver RoleResolver
	timeout  time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	session     model.Session
	generation  uint64 // Sessionを置き換える要因が発生するたびに進む
	initialized bool
	disposed    bool
	unsubscribe func()
	observers   map[uint64]func(model.Session)
	nextID      uint64
	disposeOnce sync.Once
}

// NewStore はLoading状態のStoreを生成する。
func NewStore(source IdentitySource, resolver RoleResolver, opts Options) *Store {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		source:    source,
		resolver:  resolver,
		timeout:   opts.FetchTimeout,
		logger:    opts.Logger,
		session:   model.Session{Role: model.RoleUser, Loading: true},
		observers: make(map[uint64]func(model.Session)),
	}
}

// Init は資格情報の変更通知を購読し、現在の資格情報を1回だけ取得する。
// 取得中に変更通知が届いた場合は通知の内容を優先する。
// 取得に失敗した場合は匿名セッションに解決したうえでエラーを返す。
// 2回目以降の呼び出しは何もしない。
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.unsubscribe = s.source.OnIdentityChange(s.handleEvent)
	gen := s.generation
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	identity, fetchErr := s.source.GetCurrentIdentity(fetchCtx)
	cancel()
	if fetchErr != nil {
		s.logger.Warn("failed to fetch current identity", slog.String("error", fetchErr.Error()))
		identity = nil
	}

	s.apply(ctx, gen, identity)

	if fetchErr != nil {
		return fmt.Errorf("failed to fetch current identity: %w", fetchErr)
	}
	return nil
}

// Current は現在のSessionを返す。
func (s *Store) Current() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.session)
}

// OnChange はSessionの変更を購読する。返される関数で解除する。解除は何度呼んでもよい。
func (s *Store) OnChange(fn func(model.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// SignOut は外部IdPにサインアウトを依頼する。
// 匿名Sessionへの切り替えはIdPからの変更通知で行われ、画面遷移は呼び出し側が行う。
func (s *Store) SignOut(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.source.SignOut(ctx)
}

// Dispose は変更通知の購読を解除し、以後の通知を無視する。
// Initを呼ぶ前でも、何度呼んでもよい。
func (s *Store) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.observers = make(map[uint64]func(model.Session))
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

// handleEvent は外部IdPからの変更通知を受け取り、Sessionを置き換える。
func (s *Store) handleEvent(ev model.IdentityEvent) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Debug("identity changed", slog.String("event", string(ev.Kind)))
	s.apply(context.Background(), gen, ev.Identity)
}

// apply はidentityのRoleを導出してSessionを置き換える。
// 導出中にgenより新しい要因が発生していた場合は何もしない。
func (s *Store) apply(ctx context.Context, gen uint64, identity *model.Identity) {
	role := s.resolveRole(ctx, identity)

	s.mu.Lock()
	if s.disposed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.session = model.Session{Identity: copyIdentity(identity), Role: role}
	current := copySession(s.session)
	fns := make([]func(model.Session), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
}

// resolveRole はRoleを導出する。失敗した場合はRoleUserに倒す。
func (s *Store) resolveRole(ctx context.Context, identity *model.Identity) model.Role {
	if identity == nil || s.resolver == nil {
		return model.RoleUser
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	role, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		s.logger.Warn("failed to resolve role, falling back to user",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return model.RoleUser
	}
	return role
}

func copySession(sess model.Session) model.Session {
	sess.Identity = copyIdentity(sess.Identity)
	return sess
}

func copyIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
