package codec

import (
	"net/url"
	"strconv"
	"strings"

	"subpool/subpool/model"
)

// parseSS handles both SS grammars: the userinfo form
// ss://<base64>@host:port#name (payload "method:password") and the fully
// encoded form ss://<base64>#name (payload "method:password@host:port").
func parseSS(uri string) (*model.Node, error) {
	rest, name := cutFragment(strings.TrimPrefix(uri, "ss://"))

	var method, password, host string
	var port int
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		dec, err := DecodeBase64(rest[:at])
		if err != nil {
			return nil, err
		}
		var ok bool
		method, password, ok = strings.Cut(string(dec), ":")
		if !ok {
			return nil, ErrMalformedURI
		}
		host, port, err = splitHostPort(rest[at+1:])
		if err != nil {
			return nil, err
		}
	} else {
		dec, err := DecodeBase64(rest)
		if err != nil {
			return nil, err
		}
		payload := string(dec)
		at := strings.LastIndex(payload, "@")
		if at < 0 {
			return nil, ErrMalformedURI
		}
		var ok bool
		method, password, ok = strings.Cut(payload[:at], ":")
		if !ok {
			return nil, ErrMalformedURI
		}
		host, port, err = splitAddr(payload[at+1:])
		if err != nil {
			return nil, err
		}
	}

	return finishNode(&model.Node{
		Protocol: model.ProtocolSS,
		Server:   host,
		Port:     port,
		Name:     name,
		Params: map[string]string{
			"method":   method,
			"password": password,
		},
	}), nil
}

func formatSS(n *model.Node) string {
	// Clash-sourced nodes spell the method "cipher".
	payload := encodeBase64URL(paramFirst(n, "method", "cipher") + ":" + n.Params["password"])
	return "ss://" + payload + "@" + n.HostPort() + "#" + url.PathEscape(n.Name)
}

// cutFragment splits off the #name fragment and percent-decodes it.
func cutFragment(s string) (string, string) {
	rest, frag, ok := strings.Cut(s, "#")
	if !ok {
		return s, ""
	}
	if dec, err := url.PathUnescape(frag); err == nil {
		frag = dec
	}
	return rest, frag
}

// splitAddr splits a decoded "host:port" on the last colon; the host part may
// be a bare or bracketed IPv6 literal.
func splitAddr(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		return "", 0, ErrMalformedURI
	}
	host := strings.Trim(s[:idx], "[]")
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil || port < 1 || port > 65535 || host == "" {
		return "", 0, ErrMalformedURI
	}
	return host, port, nil
}
