// Package signer отвечает за целостность тел задач: подпись при постановке
// в очередь и проверку перед исполнением. Задача с невалидной подписью
// считается повреждённой и уходит в dead letter без диспатча.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer подписывает и проверяет байтовые тела задач (HMAC-SHA256).
type Signer struct {
	key []byte
}

// New создаёт Signer с данным секретом. Пустой секрет допустим,
// но тогда подпись защищает только от случайной порчи данных.
func New(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign возвращает hex-подпись тела.
func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись с ожидаемой за константное время.
func (s *Signer) Verify(body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
