package keygen

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	alphabet  = "abcdefghijklmnopqrstuvwxyz"
	RandomLen = 10
)

// Generate returns a job key of the form "<10 lowercase letters>_<unix seconds>".
func Generate() string {
	return generateAt(time.Now())
}

func generateAt(now time.Time) string {
	var b strings.Builder
	b.Grow(RandomLen + 1 + 20)
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < RandomLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic("keygen: read random: " + err.Error())
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	return b.String()
}

// Sanitize drops everything except ASCII letters, digits and underscore.
func Sanitize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
