package transport

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RoomIDLength is the length of generated room tokens.
const RoomIDLength = 8

const roomAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRoomID returns a random base-36 room token.
func NewRoomID() string {
	var sb strings.Builder
	sb.Grow(RoomIDLength)
	max := big.NewInt(int64(len(roomAlphabet)))
	for i := 0; i < RoomIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("transport: read random: " + err.Error())
		}
		sb.WriteByte(roomAlphabet[n.Int64()])
	}
	return sb.String()
}
