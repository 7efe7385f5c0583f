package utils

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Recovery tokens identify a cart in recovery links. The token itself is not
// signed; the accompanying action nonce provides authenticity and expiry.

// EncodeRecoveryToken builds the token base64(id|email).
func EncodeRecoveryToken(cartID uint, email string) string {
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%d|%s", cartID, email)))
}

// DecodeRecoveryToken parses a recovery token back into cart id and email.
func DecodeRecoveryToken(token string) (uint, string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", fmt.Errorf("malformed recovery token: %w", err)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, "", fmt.Errorf("malformed recovery token")
	}

	id, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("malformed recovery token: %w", err)
	}

	return uint(id), parts[1], nil
}
