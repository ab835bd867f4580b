package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomCodeGenerator выдаёт случайный код комнаты заданной длины
type RoomCodeGenerator func(length int) (string, error)

// RandomRoomCode равномерно выбирает символы из A-Z0-9
func RandomRoomCode(length int) (string, error) {
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
