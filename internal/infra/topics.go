package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Генератор имен топиков для inbox'ов агентов. Адрес нормализуется и
// хэшируется, чтобы имя топика не зависело от регистра и спецсимволов адреса.

var (
	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9\-]`)
	multiDashRe = regexp.MustCompile(`-+`)
)

func sanitizeAndHashAddress(address string) string {
	s := strings.ToLower(address)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = multiDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TopicForAddress — имя топика inbox'а: agent-inbox-<sha256(sanitized)>.
func TopicForAddress(address string) string {
	return "agent-inbox-" + sanitizeAndHashAddress(address)
}

// DLQTopicForAddress — имя DLQ-топика, парного к inbox'у.
func DLQTopicForAddress(address string) string {
	return "dlq-agent-inbox-" + sanitizeAndHashAddress(address)
}
