package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/smolhub/internal/api"
	"github.com/hitoshi/smolhub/internal/model"
)

// refreshLeeway は期限切れとみなすまでの猶予。期限直前のトークンは先に更新する。
// このプロセスで受け取ったトークンでは有効期間の半分を上限とする。
const refreshLeeway = 30 * time.Second

// fallbackLifetime はexpires_inもexpires_atも使えない場合に仮定する有効期間。
const fallbackLifetime = 2 * refreshLeeway

// IdentityClient はsmolhub-serverの認証APIのアダプター。
// 現在の資格情報をメモリとCredentialStoreに保持し、変更を購読者に通知する。
// 購読者のコールバックは変更を起こした呼び出しのゴルーチンで同期的に呼ばれる。
type IdentityClient struct {
	client *Client
	store  CredentialStore
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	loaded    bool
	current   *model.Identity
	observers map[int]func(model.IdentityEvent)
	nextID    int
	refreshMu sync.Mutex

	// issued はこのプロセスでサーバーから受け取ったトークンと、手元の時計で測った取得時刻と有効期間。
	// サーバーとの時計のずれに左右されずに更新時期を決めるために使う。
	issued issuedToken
}

type issuedToken struct {
	accessToken string
	at          time.Time
	lifetime    time.Duration
}

// NewIdentityClient はIdentityClientを生成する。storeがnilの場合は永続化しない。
func NewIdentityClient(client *Client, store CredentialStore, logger *slog.Logger) *IdentityClient {
	if store == nil {
		store = NewFileCredentialStore("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityClient{
		client:    client,
		store:     store,
		logger:    logger,
		now:       time.Now,
		observers: make(map[int]func(model.IdentityEvent)),
	}
}

// SignUp はユーザーを登録する。メール確認が済むまでサインインはできないため、
// 返されるIdentityはIDとEmailのみを持ち、変更通知も発生しない。
func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/v1/signup", api.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var user api.User
	if err := c.client.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &model.Identity{ID: user.ID, Email: user.Email}, nil
}

// SignInWithPassword はパスワードでサインインし、SIGNED_INを通知する。
func (c *IdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/v1/token", api.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req.query = url.Values{"grant_type": {api.GrantTypePassword}}

	var tok api.Token
	if err := c.client.do(ctx, req, &tok); err != nil {
		return nil, err
	}

	identity := tok.Identity()
	c.remember(tok)
	c.replace(identity)
	c.emit(model.IdentityEvent{Kind: model.IdentitySignedIn, Identity: identity})
	return copyIdentity(identity), nil
}

// GetCurrentIdentity は現在の資格情報を返す。匿名の場合は(nil, nil)。
// アクセストークンが期限切れの場合はリフレッシュトークンで更新し、TOKEN_REFRESHEDを通知する。
// 更新がサーバーに拒否された場合は資格情報を破棄し、SIGNED_OUTを通知する。
func (c *IdentityClient) GetCurrentIdentity(ctx context.Context) (*model.Identity, error) {
	identity, err := c.cached()
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	if !c.expiresSoon(identity) {
		return identity, nil
	}
	return c.refresh(ctx, identity)
}

// AccessToken は現在のアクセストークンを返す。匿名の場合は空文字列。
// RowClientとBlobClientのTokenFuncとして使う。
func (c *IdentityClient) AccessToken(ctx context.Context) (string, error) {
	identity, err := c.GetCurrentIdentity(ctx)
	if err != nil || identity == nil {
		return "", err
	}
	return identity.AccessToken, nil
}

// OnIdentityChange は資格情報の変更通知を購読する。
// 返される関数で購読を解除する。解除は何度呼んでもよい。
func (c *IdentityClient) OnIdentityChange(fn func(model.IdentityEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// SignOut はサーバー側のセッションを破棄し、ローカルの資格情報を消してSIGNED_OUTを通知する。
// サーバー呼び出しが失敗してもローカルの状態は匿名になる。
func (c *IdentityClient) SignOut(ctx context.Context) error {
	identity, err := c.cached()
	if err != nil {
		c.logger.Warn("failed to load credentials before sign out", slog.String("error", err.Error()))
	}

	var serverErr error
	if identity != nil {
		serverErr = c.client.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			token:  identity.AccessToken,
		}, nil)
		// 期限切れのトークンでは401になるが、サインアウトとしては成功扱いでよい
		if model.HasCode(serverErr, model.ErrCodeNotAuthenticated) {
			serverErr = nil
		}
	}

	c.replace(nil)
	c.emit(model.IdentityEvent{Kind: model.IdentitySignedOut})

	if serverErr != nil {
		return fmt.Errorf("sign out: %w", serverErr)
	}
	return nil
}

// VerifyEmailToken はメール確認トークンを検証する。
func (c *IdentityClient) VerifyEmailToken(ctx context.Context, tokenHash, kind string) error {
	req, err := jsonRequest(http.MethodPost, "/auth/v1/verify", api.VerifyRequest{TokenHash: tokenHash, Type: kind})
	if err != nil {
		return err
	}
	return c.client.do(ctx, req, nil)
}

// cached はメモリ上の資格情報を返す。初回のみCredentialStoreから読み込む。
func (c *IdentityClient) cached() (*model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		identity, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		c.current = identity
		c.loaded = true
	}
	return copyIdentity(c.current), nil
}

func (c *IdentityClient) expiresSoon(identity *model.Identity) bool {
	if identity.AccessToken == "" {
		return true
	}
	now := c.now()

	c.mu.Lock()
	issued := c.issued
	c.mu.Unlock()

	if issued.accessToken == identity.AccessToken {
		leeway := min(refreshLeeway, issued.lifetime/2)
		return !now.Add(leeway).Before(issued.at.Add(issued.lifetime))
	}
	return identity.Expired(now.Add(refreshLeeway))
}

// remember はサーバーから受け取ったトークンの有効期間を記録する。
func (c *IdentityClient) remember(tok api.Token) {
	now := c.now()
	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime <= 0 && !tok.ExpiresAt.IsZero() {
		lifetime = tok.ExpiresAt.Sub(now)
	}
	if lifetime <= 0 {
		lifetime = fallbackLifetime
	}

	c.mu.Lock()
	c.issued = issuedToken{accessToken: tok.AccessToken, at: now, lifetime: lifetime}
	c.mu.Unlock()
}

// refresh はアクセストークンを更新する。同時に呼ばれた場合は1回だけ更新する。
// 購読者はRoleの解決などでAccessTokenを呼び直すため、通知はrefreshMuを放してから行う。
func (c *IdentityClient) refresh(ctx context.Context, stale *model.Identity) (*model.Identity, error) {
	identity, ev, err := c.refreshLocked(ctx, stale)
	if ev != nil {
		c.emit(*ev)
	}
	return identity, err
}

func (c *IdentityClient) refreshLocked(ctx context.Context, stale *model.Identity) (*model.Identity, *model.IdentityEvent, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// 待っている間に他の呼び出しが更新を済ませていればそれを使う
	current, err := c.cached()
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, nil
	}
	if current.RefreshToken != stale.RefreshToken && !c.expiresSoon(current) {
		return current, nil, nil
	}

	req, err := jsonRequest(http.MethodPost, "/auth/v1/token", api.RefreshRequest{RefreshToken: current.RefreshToken})
	if err != nil {
		return nil, nil, err
	}
	req.query = url.Values{"grant_type": {api.GrantTypeRefreshToken}}

	var tok api.Token
	if err := c.client.do(ctx, req, &tok); err != nil {
		if isRejection(err) {
			c.logger.Info("refresh token rejected, signing out", slog.String("user_id", current.ID))
			c.replace(nil)
			return nil, &model.IdentityEvent{Kind: model.IdentitySignedOut}, nil
		}
		return nil, nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	identity := tok.Identity()
	c.remember(tok)
	c.replace(identity)
	return copyIdentity(identity), &model.IdentityEvent{Kind: model.IdentityTokenRefreshed, Identity: identity}, nil
}

// replace はメモリとCredentialStoreの資格情報を置き換える。
// 保存に失敗してもメモリ上の状態は更新する。
func (c *IdentityClient) replace(identity *model.Identity) {
	c.mu.Lock()
	c.current = copyIdentity(identity)
	c.loaded = true
	c.mu.Unlock()

	var err error
	if identity == nil {
		err = c.store.Clear()
	} else {
		err = c.store.Save(identity)
	}
	if err != nil {
		c.logger.Warn("failed to persist credentials", slog.String("error", err.Error()))
	}
}

func (c *IdentityClient) emit(ev model.IdentityEvent) {
	c.mu.Lock()
	fns := make([]func(model.IdentityEvent), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(model.IdentityEvent{Kind: ev.Kind, Identity: copyIdentity(ev.Identity)})
	}
}

// isRejection はサーバーがリフレッシュトークンを拒否したかどうかを返す。
// 通信エラーや5xxは拒否とみなさない。
func isRejection(err error) bool {
	for _, code := range []string{
		model.ErrCodeNotAuthenticated,
		model.ErrCodeInvalidCredentials,
		model.ErrCodeIdentityRejected,
		model.ErrCodeValidation,
	} {
		if model.HasCode(err, code) {
			return true
		}
	}
	return false
}

func copyIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
