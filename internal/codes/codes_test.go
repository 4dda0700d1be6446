package codes_test

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlesschain/chainlesschain-sub001/internal/codes"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
)

var activationCodeRe = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)

func TestGenerateActivationCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		code, err := codes.GenerateActivationCode()
		require.NoError(t, err)
		assert.Regexp(t, activationCodeRe, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 100, "коды должны быть уникальными")
}

func TestActivationCode_NormalizeAndMatch(t *testing.T) {
	code, err := codes.GenerateActivationCode()
	require.NoError(t, err)
	hash := codes.HashActivationCode(code)

	t.Run("Точное совпадение", func(t *testing.T) {
		assert.True(t, codes.MatchActivationCode(code, hash))
	})
	t.Run("Нижний регистр и без дефисов", func(t *testing.T) {
		loose := strings.ToLower(strings.ReplaceAll(code, "-", ""))
		assert.True(t, codes.MatchActivationCode(loose, hash))
	})
	t.Run("С пробелами", func(t *testing.T) {
		spaced := strings.ReplaceAll(code, "-", " ")
		assert.True(t, codes.MatchActivationCode(spaced, hash))
	})
	t.Run("Неверный код", func(t *testing.T) {
		assert.False(t, codes.MatchActivationCode("AAAA-AAAA-AAAA-AAAA", hash))
	})
	t.Run("Пустой хеш", func(t *testing.T) {
		assert.False(t, codes.MatchActivationCode(code, ""))
	})
	t.Run("Хеш не содержит кода", func(t *testing.T) {
		assert.NotContains(t, hash, codes.NormalizeActivationCode(code))
		assert.Len(t, hash, 64)
	})
}

func TestNewDeviceID(t *testing.T) {
	uk := codes.NewDeviceID(models.DeviceTypeUKey)
	sk := codes.NewDeviceID(models.DeviceTypeSIMKey)

	assert.Regexp(t, `^uk_[0-9a-f]{16}$`, uk)
	assert.Regexp(t, `^sk_[0-9a-f]{16}$`, sk)
	assert.NotEqual(t, uk, codes.NewDeviceID(models.DeviceTypeUKey))
}

func TestChallengeResponse(t *testing.T) {
	challenge, err := codes.GenerateChallenge()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(challenge)
	require.NoError(t, err)
	assert.Len(t, raw, codes.ChallengeSize)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sessionID := "3f1c1f4e-2d7a-4b4e-9b7e-0a6f3c8d2e11"
	stored := codes.HashChallenge(challenge)
	response := codes.SignChallenge(priv, sessionID, challenge)

	assert.True(t, codes.VerifyResponse(pub, sessionID, stored, response))
	assert.True(t, codes.VerifyResponse(pub, sessionID, stored, " "+response+"\n"), "пробелы по краям игнорируются")

	tests := []struct {
		name     string
		pub      []byte
		response string
	}{
		{name: "Сам вызов не является ответом", pub: pub, response: challenge},
		{name: "Подпись чужим ключом", pub: pub, response: codes.SignChallenge(otherPriv, sessionID, challenge)},
		{name: "Проверка чужим ключом", pub: otherPub, response: response},
		{name: "Ответ другой сессии", pub: pub,
			response: codes.SignChallenge(priv, "9a1c1f4e-2d7a-4b4e-9b7e-0a6f3c8d2e11", challenge)},
		{name: "Хеш вызова без ключа", pub: pub, response: hashOnlyResponse(sessionID, challenge)},
		{name: "Не base64", pub: pub, response: "!!!"},
		{name: "Ключ восстановления не зарегистрирован", pub: nil, response: response},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, codes.VerifyResponse(tt.pub, sessionID, stored, tt.response))
		})
	}
}

// hashOnlyResponse - ответ, который может вычислить любой, кто видел вызов.
func hashOnlyResponse(sessionID, challenge string) string {
	sum := sha256.Sum256([]byte("ukey-recovery:" + sessionID + ":" + challenge))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestInitiateProof(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sig := codes.SignInitiate(priv, models.TargetDevice, "uk_1", ts)

	assert.True(t, codes.VerifyInitiate(pub, models.TargetDevice, "uk_1", ts, sig))
	assert.False(t, codes.VerifyInitiate(pub, models.TargetDevice, "uk_2", ts, sig), "подпись привязана к цели")
	assert.False(t, codes.VerifyInitiate(pub, models.TargetUser, "uk_1", ts, sig), "подпись привязана к типу цели")
	assert.False(t, codes.VerifyInitiate(pub, models.TargetDevice, "uk_1", ts.Add(time.Second), sig),
		"подпись привязана ко времени")
}

func TestValidRecoveryKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	assert.True(t, codes.ValidRecoveryKey(pub))
	assert.False(t, codes.ValidRecoveryKey(nil))
	assert.False(t, codes.ValidRecoveryKey(make([]byte, 31)))
}
