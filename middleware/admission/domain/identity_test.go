package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityClass_IPv4TruncatesTo24(t *testing.T) {
	assert.Equal(t, "ip:203.0.113.0/24", IdentityClass("ip:203.0.113.7"))
	assert.Equal(t, IdentityClass("ip:203.0.113.7"), IdentityClass("ip:203.0.113.200"))
	assert.Equal(t, "ip:203.0.113.0/24", IdentityClass("ip:::ffff:203.0.113.7"))
}

func TestIdentityClass_IPv6TruncatesTo48(t *testing.T) {
	assert.Equal(t, "ip:2001:db8:abcd::/48", IdentityClass("ip:2001:db8:abcd:12::1"))
}

func TestIdentityClass_UserIsHashedBucket(t *testing.T) {
	c := IdentityClass("user:abc123")
	assert.True(t, strings.HasPrefix(c, "user:#"))
	assert.NotContains(t, c, "abc123")
	assert.Equal(t, c, IdentityClass("user:abc123"))
	assert.Len(t, strings.TrimPrefix(c, "user:#"), 2)
}

func TestIdentityClass_Unknown(t *testing.T) {
	for _, in := range []string{"", "plain", "ip:not-an-ip", ":x", "user:", "we!rd:x"} {
		assert.Equal(t, ClassUnknown, IdentityClass(in), in)
	}
}
