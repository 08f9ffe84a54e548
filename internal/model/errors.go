// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// サーバーのHTTPレスポンスとクライアントのインラインバナーの両方で同じ型を用いる。
// Messageはユーザーにそのまま表示される文言。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, storage, catalog, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（シリアライズしない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthenticated    = "NOT_AUTHENTICATED"
	ErrCodeNotAuthorized       = "NOT_AUTHORIZED"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeStorageUnconfigured = "STORAGE_UNCONFIGURED"
	ErrCodeUploadFailed        = "UPLOAD_FAILED"
	ErrCodePersistFailed       = "PERSIST_FAILED"
	ErrCodeIdentityRejected    = "IDENTITY_REJECTED"
	ErrCodeDuplicateModel      = "DUPLICATE_MODEL"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailNotConfirmed   = "EMAIL_NOT_CONFIRMED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// MessageInvalidLoginCredentials はIdPがパスワード不一致時に返す汎用メッセージ。
const MessageInvalidLoginCredentials = "Invalid login credentials"

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewNotAuthenticatedError は未認証エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "Not authenticated",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewNotAuthorizedError は権限不足エラーを生成する。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "Only administrators can upload models.",
		Category: "auth",
		Action:   "管理者アカウントでサインインしてください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewStorageUnconfiguredError は想定したバケットが存在しない場合のエラーを生成する。
func NewStorageUnconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnconfigured,
		Message:  "Storage not configured. Please contact administrator.",
		Category: "storage",
		Action:   "管理者にストレージの設定を依頼してください。",
	}
}

// NewUploadFailedError はBlobアップロード失敗エラーを生成する。
// 原因のメッセージをそのまま表示する。
func NewUploadFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  causeMessage(err, "Failed to upload model file"),
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewPersistFailedError はカタログ行の保存失敗エラーを生成する。
func NewPersistFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodePersistFailed,
		Message:  causeMessage(err, "Failed to save model record"),
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewIdentityRejectedError は認証情報や確認トークンが拒否された場合のエラーを生成する。
func NewIdentityRejectedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityRejected,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateModelError はカタログに同じ識別子が既に存在する場合のエラーを生成する。
func NewDuplicateModelError(uniqueID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateModel,
		Message:  fmt.Sprintf("A model with ID %q already exists.", uniqueID),
		Category: "validation",
		Action:   "別のモデル名（またはID）を指定してください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MessageInvalidLoginCredentials,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewEmailNotConfirmedError はメールアドレス未確認のエラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "Email not confirmed",
		Category: "auth",
		Action:   "確認メールのリンクを開いてからサインインしてください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", what),
		Category: "catalog",
		Action:   "IDを確認してください。",
	}
}

// NewAlreadyExistsError は既存リソースへの上書きを拒否した場合のエラーを生成する。
func NewAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  "The resource already exists",
		Category: "storage",
		Action:   "別のパスを指定してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func causeMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
