// Package randutil implements random utilities.
package randutil

import (
	"math/rand"
	"time"
)

const ll = "0123456789abcdefghijklmnopqrstuvwxyz"

func init() {
	rand.Seed(time.Now().UnixNano())
}

// String returns a random alphanumeric string, usable as a resource
// name suffix.
func String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ll[rand.Intn(len(ll))]
	}
	return string(b)
}
