// Package codes генерирует и проверяет одноразовые секреты движка:
// коды активации, идентификаторы устройств и вызовы восстановления.
// Открытые значения никогда не сохраняются, в БД попадают только хеши.
// Ответ на вызов - подпись Ed25519 ключом восстановления, который владелец
// регистрирует при активации устройства или в учетной записи.
package codes

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

const (
	// activationAlphabet не содержит похожих символов (0/O, 1/I).
	activationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	activationGroups   = 4
	activationGroupLen = 4
	// ActivationCodeLen - число значимых символов кода активации.
	ActivationCodeLen = activationGroups * activationGroupLen

	// ChallengeSize - размер вызова восстановления в байтах.
	ChallengeSize = 32

	deviceIDRandomLen = 16
	responseDomain    = "ukey-recovery:"
	initiateDomain    = "ukey-recovery-initiate:"
)

// GenerateActivationCode возвращает код вида XXXX-XXXX-XXXX-XXXX.
func GenerateActivationCode() (string, error) {
	buf := make([]byte, ActivationCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации кода активации: %w", err)
	}
	var sb strings.Builder
	for i, b := range buf {
		if i > 0 && i%activationGroupLen == 0 {
			sb.WriteByte('-')
		}
		// 256 делится на 32 без остатка, распределение равномерное
		sb.WriteByte(activationAlphabet[int(b)%len(activationAlphabet)])
	}
	return sb.String(), nil
}

// NormalizeActivationCode приводит введенный пользователем код к каноническому виду:
// верхний регистр, без дефисов и пробелов.
func NormalizeActivationCode(code string) string {
	code = strings.ToUpper(code)
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, code)
}

// HashActivationCode вычисляет SHA256 нормализованного кода (hex).
func HashActivationCode(code string) string {
	return hashHex(NormalizeActivationCode(code))
}

// MatchActivationCode сравнивает код с сохраненным хешем за постоянное время.
func MatchActivationCode(code, storedHash string) bool {
	return constantTimeEqual(HashActivationCode(code), storedHash)
}

// NewDeviceID генерирует идентификатор устройства с префиксом типа.
func NewDeviceID(deviceType models.DeviceType) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return deviceType.IDPrefix() + raw[:deviceIDRandomLen]
}

// GenerateChallenge возвращает 32 случайных байта в base64url без паддинга.
func GenerateChallenge() (string, error) {
	buf := make([]byte, ChallengeSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации вызова: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashChallenge вычисляет хеш вызова для хранения (hex SHA256).
func HashChallenge(challenge string) string {
	return hashHex(strings.TrimSpace(challenge))
}

// ValidRecoveryKey сообщает, является ли key открытым ключом Ed25519.
func ValidRecoveryKey(key []byte) bool {
	return len(key) == ed25519.PublicKeySize
}

// ChallengeMessage возвращает подписываемое сообщение:
// "ukey-recovery:" + sessionID + ":" + hex(SHA256(challenge)).
// Подпись привязана к сессии, поэтому ответ одной сессии не подходит к другой.
func ChallengeMessage(sessionID, challengeHash string) []byte {
	return []byte(responseDomain + sessionID + ":" + challengeHash)
}

// SignChallenge подписывает вызов ключом восстановления владельца.
// Возвращает ответ в base64url без паддинга.
func SignChallenge(priv ed25519.PrivateKey, sessionID, challenge string) string {
	sig := ed25519.Sign(priv, ChallengeMessage(sessionID, HashChallenge(challenge)))
	return base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyResponse проверяет ответ на вызов: подпись Ed25519 сообщения ChallengeMessage
// открытым ключом, зарегистрированным за целью восстановления.
func VerifyResponse(pub []byte, sessionID, challengeHash, response string) bool {
	return verify(pub, ChallengeMessage(sessionID, challengeHash), response)
}

// InitiateMessage возвращает сообщение, которым владелец подтверждает начало восстановления:
// "ukey-recovery-initiate:" + тип + ":" + идентификатор + ":" + unix-время.
func InitiateMessage(targetType models.RecoveryTargetType, targetID string, ts time.Time) []byte {
	return []byte(initiateDomain + string(targetType) + ":" + targetID + ":" + strconv.FormatInt(ts.Unix(), 10))
}

// SignInitiate подписывает подтверждение начала восстановления.
func SignInitiate(priv ed25519.PrivateKey, targetType models.RecoveryTargetType, targetID string, ts time.Time) string {
	return base64.RawURLEncoding.EncodeToString(ed25519.Sign(priv, InitiateMessage(targetType, targetID, ts)))
}

// VerifyInitiate проверяет подпись подтверждения начала восстановления.
func VerifyInitiate(
	pub []byte,
	targetType models.RecoveryTargetType,
	targetID string,
	ts time.Time,
	signature string,
) bool {
	return verify(pub, InitiateMessage(targetType, targetID, ts), signature)
}

func verify(pub, message []byte, signature string) bool {
	if !ValidRecoveryKey(pub) {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
