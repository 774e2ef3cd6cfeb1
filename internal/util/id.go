package util

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// BlockID is a block identifier carrying its creation instant:
// block_<epoch ms>_<random>.
func BlockID(ms int64) string {
	bytes := make([]byte, 4)
	_, _ = rand.Read(bytes)
	return "block_" + strconv.FormatInt(ms, 10) + "_" + hex.EncodeToString(bytes)
}
