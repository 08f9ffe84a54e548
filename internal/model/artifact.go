// Package model はドメインモデルを定義する。
package model

import "time"

// DateLayout はupdate_dateなど暦日フィールドの表記。
const DateLayout = "2006-01-02"

// ModelArtifact はアップロードされたモデルバイナリのカタログ行を表す。
// アップロード時に一度だけ作成され、以後は変更されない。
type ModelArtifact struct {
	ID            string
	Name          string
	UniqueID      string
	FilePath      string // バケット内のパス: {unique_id}/{元ファイル名}
	SizeBytes     int64
	UpdateDate    time.Time
	ReadmeContent string
	UploaderID    string
	CreatedAt     time.Time
}

// SizeMiB はサイズをMiB単位で返す。
func (m *ModelArtifact) SizeMiB() float64 {
	return float64(m.SizeBytes) / 1024 / 1024
}

// Bucket はBlobストアのバケットを表す。
type Bucket struct {
	Name      string
	CreatedAt time.Time
}
