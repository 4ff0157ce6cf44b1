package domain

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	ClassUnknown  = "unknown"
	ClassOverflow = "overflow"

	identityBuckets = 256
)

// IdentityClass reduz uma identidade a um balde não reversível:
//
//   - "ip:<v4>"  -> "ip:a.b.c.0/24"
//   - "ip:<v6>"  -> "ip:<prefixo>/48"
//   - "<kind>:x" -> "<kind>:#hh" (xxhash em 256 baldes)
//   - resto      -> "unknown"
func IdentityClass(identity string) string {
	kind, value, ok := strings.Cut(strings.TrimSpace(identity), ":")
	if !ok || kind == "" || value == "" {
		return ClassUnknown
	}
	kind = strings.ToLower(kind)

	if kind == "ip" {
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return ClassUnknown
		}
		addr = addr.Unmap()
		bits := 48
		if addr.Is4() {
			bits = 24
		}
		prefix, err := addr.Prefix(bits)
		if err != nil {
			return ClassUnknown
		}
		return "ip:" + prefix.String()
	}

	if !isClassKind(kind) {
		return ClassUnknown
	}
	return fmt.Sprintf("%s:#%02x", kind, xxhash.Sum64String(value)%identityBuckets)
}

func isClassKind(kind string) bool {
	if len(kind) > 16 {
		return false
	}
	for _, r := range kind {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
