// Package codec parses and emits the five supported proxy URI schemes and the
// Clash-style proxies document. Parsing and formatting round-trip: for any
// node this package produces, Parse(Format(node)) yields an equal node.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"subpool/subpool/model"
)

var (
	// ErrMalformedURI reports a line with a recognized scheme but a broken structure.
	ErrMalformedURI = errors.New("malformed proxy URI")
	// ErrUnsupportedProtocol reports a scheme outside the supported five.
	ErrUnsupportedProtocol = errors.New("unsupported proxy protocol")
	// ErrDecodeFailed reports a base64 or structured-document decode failure.
	ErrDecodeFailed = errors.New("decode failed")
)

// Parse dispatches a single URI line to the scheme parser.
func Parse(line string) (*model.Node, error) {
	switch {
	case strings.HasPrefix(line, "ss://"):
		return parseSS(line)
	case strings.HasPrefix(line, "ssr://"):
		return parseSSR(line)
	case strings.HasPrefix(line, "vmess://"):
		return parseVMess(line)
	case strings.HasPrefix(line, "vless://"):
		return parseVLESS(line)
	case strings.HasPrefix(line, "trojan://"):
		return parseTrojan(line)
	}
	return nil, ErrUnsupportedProtocol
}

// HasKnownScheme reports whether a trimmed line starts with one of the five
// URI prefixes.
func HasKnownScheme(line string) bool {
	for _, p := range model.Protocols {
		if strings.HasPrefix(line, string(p)+"://") {
			return true
		}
	}
	return false
}

// Format renders a node back into its scheme's canonical output grammar.
func Format(n *model.Node) (string, error) {
	switch n.Protocol {
	case model.ProtocolSS:
		return formatSS(n), nil
	case model.ProtocolSSR:
		return formatSSR(n), nil
	case model.ProtocolVMess:
		return formatVMess(n)
	case model.ProtocolVLESS:
		return formatVLESS(n), nil
	case model.ProtocolTrojan:
		return formatTrojan(n), nil
	}
	return "", ErrUnsupportedProtocol
}

// DecodeBase64 decodes standard or URL-safe base64, re-synthesizing missing
// padding first. Subscription payloads routinely strip it.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if pad := len(s) % 4; pad > 0 {
		s += strings.Repeat("=", 4-pad)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrDecodeFailed
	}
	return b, nil
}

func encodeBase64URL(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// paramFirst returns the first non-empty bag value among the given keys.
// Formatters use it to accept both the URI spelling of a field and the
// Clash-document spelling, so nodes from either source emit valid links.
func paramFirst(n *model.Node, keys ...string) string {
	for _, k := range keys {
		if v := n.Params[k]; v != "" {
			return v
		}
	}
	return ""
}

// SynthesizeName produces the fallback display name for nodes without one.
func SynthesizeName(n *model.Node) string {
	return fmt.Sprintf("%s-%s:%d", n.Protocol, n.Server, n.Port)
}

// splitHostPort splits "host:port", tolerating bracketed IPv6 literals.
// The returned host carries no brackets.
func splitHostPort(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, ErrMalformedURI
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, ErrMalformedURI
	}
	if host == "" {
		return "", 0, ErrMalformedURI
	}
	return host, port, nil
}

func finishNode(n *model.Node) *model.Node {
	if n.Name == "" {
		n.Name = SynthesizeName(n)
	}
	if n.Params == nil {
		n.Params = map[string]string{}
	}
	return n
}
