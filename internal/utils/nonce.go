package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Action nonces bind an action name (plus an optional object id) to a coarse
// time window. A nonce minted in the current 12-hour tick verifies during
// that tick and the next one, giving roughly 24 hours of validity.
const nonceTick = 12 * time.Hour

var nonceSecret []byte

// SetNonceSecret sets the HMAC key for action nonces. Call once during startup.
func SetNonceSecret(secret string) {
	nonceSecret = []byte(secret)
}

// CreateNonce mints a nonce for the given action at time now.
func CreateNonce(action string, now time.Time) string {
	return nonceForTick(action, tick(now))
}

// VerifyNonce checks a nonce for the given action. It returns the nonce age:
// 1 for the current tick, 2 for the previous one, and 0 when invalid.
func VerifyNonce(nonce, action string, now time.Time) int {
	t := tick(now)

	if hmac.Equal([]byte(nonce), []byte(nonceForTick(action, t))) {
		return 1
	}
	if hmac.Equal([]byte(nonce), []byte(nonceForTick(action, t-1))) {
		return 2
	}
	return 0
}

func tick(now time.Time) int64 {
	return now.Unix() / int64(nonceTick/time.Second)
}

func nonceForTick(action string, tick int64) string {
	mac := hmac.New(sha256.New, nonceSecret)
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(tick)
		tick >>= 8
	}
	mac.Write(buf[:])
	// Truncated like classic web nonces; 10 hex chars is enough to make
	// online guessing impractical while keeping URLs short.
	return hex.EncodeToString(mac.Sum(nil))[:10]
}
