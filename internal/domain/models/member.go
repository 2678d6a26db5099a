package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// Member - участник комнаты. ID назначается relay-сервером на каждое
// соединение, соединение состоит максимум в одной комнате.
type Member struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
}

const (
	// Длина room id при генерации на сервере.
	RoomIDLength = 6

	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxRoomIDLength = 32

	minUsernameLength = 2
	maxUsernameLength = 20

	forbiddenUsernameChars = `<>:"/\|?*`
)

// GenerateRoomID генерирует 6-символьный room id из заглавных букв и цифр.
func GenerateRoomID() string {
	var b strings.Builder
	b.Grow(RoomIDLength)

	for i := 0; i < RoomIDLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		b.WriteByte(roomIDAlphabet[n.Int64()])
	}

	return b.String()
}

// NormalizeRoomID приводит room id к верхнему регистру и валидирует его.
func NormalizeRoomID(roomID string) (string, error) {
	roomID = strings.ToUpper(strings.TrimSpace(roomID))

	if roomID == "" {
		return "", fmt.Errorf("room id is required")
	}

	if len(roomID) > maxRoomIDLength {
		return "", fmt.Errorf("room id is too long")
	}

	for _, r := range roomID {
		if !strings.ContainsRune(roomIDAlphabet, r) {
			return "", fmt.Errorf("room id contains invalid character %q", r)
		}
	}

	return roomID, nil
}

// ValidateUsername проверяет отображаемое имя: 2-20 печатных символов,
// без символов, запрещенных в именах.
func ValidateUsername(username string) error {
	runes := []rune(username)

	if len(runes) < minUsernameLength {
		return fmt.Errorf("username is too short")
	}

	if len(runes) > maxUsernameLength {
		return fmt.Errorf("username is too long")
	}

	for _, r := range runes {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("username contains non-printable character")
		}

		if strings.ContainsRune(forbiddenUsernameChars, r) {
			return fmt.Errorf("username contains forbidden character %q", r)
		}
	}

	return nil
}
