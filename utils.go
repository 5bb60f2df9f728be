package main

import (
	"net"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// newRequestID returns an id like "req_a1b2c3d4"
func newRequestID() string {
	return "req_" + uuid.New().String()[:8]
}

// clientKey strips the port from a remote address so every connection from
// one host shares a rate limit bucket
func clientKey(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// truncate cuts s to at most max bytes, ending in "..." when shortened, and
// never splits a UTF-8 sequence
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
