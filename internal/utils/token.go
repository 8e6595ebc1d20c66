package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderToken builds a human-readable order token for intake paths
// whose client did not send one.
func GenerateOrderToken(now time.Time) string {
	now = now.UTC()

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("ord-%s-%04d", now.Format("20060102-150405"), n.Int64())
}
