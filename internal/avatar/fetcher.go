// Package avatar は連携プロフィール画像の取得を提供する。
package avatar

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SSRFValidator はアバター取得時のSSRF防御インターフェース。
// security.SSRFGuardServiceの部分集合として定義する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher は連携IdPが公開するプロフィール画像の取得機能の実装。
// 取得はベストエフォートであり、どの失敗モードでもnilデータを返すのみで
// エラーは伝播しない。
type Fetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Fetch は指定URLからプロフィール画像を取得する。
// 取得失敗時はnilデータと空MIMEを返す（既定画像へフォールバックする）。
func (f *Fetcher) Fetch(ctx context.Context, pictureURL string) ([]byte, string) {
	if pictureURL == "" {
		return nil, ""
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(pictureURL); err != nil {
			slog.Warn("avatar取得: SSRFブロック", "url", pictureURL, "error", err)
			return nil, ""
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		slog.Warn("avatar取得: リクエスト作成失敗", "url", pictureURL, "error", err)
		return nil, ""
	}
	req.Header.Set("User-Agent", "Tamago/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("avatar取得: HTTPリクエスト失敗", "url", pictureURL, "error", err)
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("avatar取得: HTTPステータス異常", "url", pictureURL, "status", resp.StatusCode)
		return nil, ""
	}

	// レスポンスボディを読み込み（上限超過は失敗扱い）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("avatar取得: レスポンス読み取り失敗", "url", pictureURL, "error", err)
		return nil, ""
	}
	if int64(len(body)) > f.maxSize {
		slog.Warn("avatar取得: サイズ超過", "url", pictureURL, "size", len(body))
		return nil, ""
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		slog.Warn("avatar取得: 画像以外のContent-Type", "url", pictureURL, "contentType", mimeType)
		return nil, ""
	}

	return body, mimeType
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *Fetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
