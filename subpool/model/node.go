package model

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// Protocol identifies one of the supported proxy URI schemes.
type Protocol string

const (
	ProtocolSS     Protocol = "ss"
	ProtocolSSR    Protocol = "ssr"
	ProtocolVMess  Protocol = "vmess"
	ProtocolVLESS  Protocol = "vless"
	ProtocolTrojan Protocol = "trojan"
)

// Protocols lists the supported schemes in a stable order.
var Protocols = []Protocol{ProtocolSS, ProtocolSSR, ProtocolVMess, ProtocolVLESS, ProtocolTrojan}

// Probe failure reasons. The reason is diagnostic only: scoring sees the
// binary valid/invalid outcome.
const (
	ReasonTimeout     = "timeout"
	ReasonRefused     = "refused"
	ReasonUnreachable = "unreachable"
	ReasonDNSFailed   = "dns_failed"
	ReasonCancelled   = "cancelled"
	ReasonOther       = "other"
)

// Node is a single parsed proxy endpoint. The Params bag is opaque to the
// validator and preserved verbatim for the emitter, including keys the codec
// does not recognize.
type Node struct {
	Protocol Protocol
	Server   string // hostname or IP, IPv6 literals without brackets
	Port     int
	Name     string
	Params   map[string]string

	// Subscription is the URL of the owning subscription (provenance).
	Subscription string

	// Set by the validator.
	Valid      bool
	LatencyMS  int64
	FailReason string
}

// CanonicalHost lowercases a hostname and maps internationalized names to
// their punycode form so that dedup keys compare stably.
func CanonicalHost(server string) string {
	host := strings.Trim(server, "[]")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	return strings.ToLower(host)
}

// CanonicalKey is the deduplication identity (protocol, lowercase server, port).
func (n *Node) CanonicalKey() string {
	return fmt.Sprintf("%s|%s|%d", n.Protocol, CanonicalHost(n.Server), n.Port)
}

// HostPort renders the endpoint address, restoring brackets for IPv6 literals.
func (n *Node) HostPort() string {
	host := n.Server
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, n.Port)
}

// Param returns a bag value or a fallback when the key is absent or empty.
func (n *Node) Param(key, fallback string) string {
	if v, ok := n.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}
