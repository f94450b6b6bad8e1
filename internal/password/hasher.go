// Package password はパスワードの一方向ハッシュ化と検証を提供する。
//
// ハッシュはargon2idを使用し、アルゴリズム・バージョン・パラメータ・
// ソルト・ダイジェストを1つの文字列にエンコードする（自己記述形式）。
// 検証は保存されたハッシュ文字列のみで完結し、外部状態に依存しない。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hasher はパスワードハッシュ化のインターフェース。
type Hasher interface {
	// Hash は平文パスワードをエンコード済みハッシュ文字列に変換する。
	// エラーはエントロピー源の失敗時のみ発生する。
	Hash(plaintext string) (string, error)

	// Verify は平文パスワードとエンコード済みハッシュを比較する。
	// パスワード不一致は(false, nil)であり、エラーではない。
	// エラーはハッシュ文字列が解読不能な場合にのみ返す。
	Verify(plaintext, encoded string) (bool, error)
}

// Argon2Params はargon2idのコストパラメータ。
type Argon2Params struct {
	Memory      uint32 // メモリコスト（KiB）
	Iterations  uint32 // 反復回数
	Parallelism uint8  // 並列度
	SaltLength  uint32 // ソルト長。Verifyでは保存値を使用する
	KeyLength   uint32 // ダイジェスト長
}

// Argon2Hasher はargon2idによるHasherの実装。
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher は推奨パラメータのArgon2Hasherを生成する。
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		params: Argon2Params{
			Memory:      64 * 1024, // 64 MB
			Iterations:  3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Hash は平文パスワードをargon2idでハッシュ化し、
// $argon2id$v=...$m=...,t=...,p=...$salt$digest 形式でエンコードする。
func (h *Argon2Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	digest := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify は平文パスワードとエンコード済みハッシュを定数時間で比較する。
// 保存された文字列に含まれるパラメータを使用して再計算するため、
// コストパラメータを変更しても既存ハッシュの検証は継続できる。
func (h *Argon2Hasher) Verify(plaintext, encoded string) (bool, error) {
	params, salt, digest, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		params.KeyLength,
	)

	return subtle.ConstantTimeCompare(digest, computed) == 1, nil
}

// decodeHash はエンコード済みハッシュ文字列からパラメータ・ソルト・
// ダイジェストを復元する。
func decodeHash(encoded string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}

	params := &Argon2Params{}
	var parallelism int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Iterations, &parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}
	params.Parallelism = uint8(parallelism)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid salt encoding: %w", err)
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid digest encoding: %w", err)
	}
	params.KeyLength = uint32(len(digest))

	return params, salt, digest, nil
}

// compile-time interface check
var _ Hasher = (*Argon2Hasher)(nil)
