// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はユーザー入力の表示名をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicy（全タグ除去）を使用する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
// 登録時とプロフィール更新時の両方で使用される。
type NameSanitizerService interface {
	// Sanitize は表示名からHTMLタグを全て除去し、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(displayName string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// 表示名はプレーンテキストとして扱うため、タグを一切許可しない
// StrictPolicyを使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からHTMLタグを全て除去し、前後の空白を取り除く。
func (s *nameSanitizer) Sanitize(displayName string) string {
	return strings.TrimSpace(s.policy.Sanitize(displayName))
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
