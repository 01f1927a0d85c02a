package mirror

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RESTTransactionID converts 0.0.1001@1700000000.000000123 into 0.0.1001-1700000000-000000123.
func RESTTransactionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	account, valid, ok := strings.Cut(id, "@")
	if !ok {
		parts := strings.Split(id, "-")
		if len(parts) != 3 || !isEntityID(parts[0]) || !isDigits(parts[1]) || !isDigits(parts[2]) {
			return "", fmt.Errorf("%w: %q", ErrBadID, id)
		}
		return id, nil
	}
	secs, nanos, ok := strings.Cut(valid, ".")
	if !ok || !isEntityID(account) || !isDigits(secs) || !isDigits(nanos) {
		return "", fmt.Errorf("%w: %q", ErrBadID, id)
	}
	return account + "-" + secs + "-" + nanos, nil
}

// ParseTimestamp parses mirror node "seconds.nanoseconds" timestamps.
func ParseTimestamp(ts string) (time.Time, error) {
	secs, nanos, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	var n int64
	if nanos != "" {
		if len(nanos) > 9 {
			nanos = nanos[:9]
		}
		nanos += strings.Repeat("0", 9-len(nanos))
		if n, err = strconv.ParseInt(nanos, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(s, n).UTC(), nil
}

func isEntityID(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if !isDigits(p) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
