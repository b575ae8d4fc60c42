package redis

import (
	"fmt"
	"net/url"
)

// splitKey removes the "key" query parameter, which go-redis would reject.
func splitKey(dsn string) (string, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("parse redis DSN: %w", err)
	}
	q := u.Query()
	key := q.Get("key")
	q.Del("key")
	u.RawQuery = q.Encode()
	return u.String(), key, nil
}
