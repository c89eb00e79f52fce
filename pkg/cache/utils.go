package cache

import (
	"fmt"
	"strings"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// GenerateKeyWithParams joins prefix and params with ':'.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&sb, ":%v", p)
	}
	return sb.String()
}
