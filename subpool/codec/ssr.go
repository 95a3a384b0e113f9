package codec

import (
	"sort"
	"strconv"
	"strings"

	"subpool/subpool/model"
)

// ssrQueryOrder fixes the emission order of the well-known SSR query keys so
// formatted links stay diff-stable. Unknown keys follow, sorted.
var ssrQueryOrder = []string{"obfsparam", "protoparam", "remarks", "group"}

// parseSSR decodes ssr://<base64> where the body is
// host:port:protocol:method:obfs:password_base64/?key=value_base64&... .
func parseSSR(uri string) (*model.Node, error) {
	dec, err := DecodeBase64(strings.TrimPrefix(uri, "ssr://"))
	if err != nil {
		return nil, err
	}
	main, query, _ := strings.Cut(string(dec), "/?")

	parts := strings.Split(main, ":")
	if len(parts) < 6 {
		return nil, ErrMalformedURI
	}
	// The host may itself contain colons (IPv6); the five trailing fields
	// are fixed, everything before them is the host.
	tail := parts[len(parts)-5:]
	host := strings.Trim(strings.Join(parts[:len(parts)-5], ":"), "[]")
	port, err := strconv.Atoi(tail[0])
	if err != nil || port < 1 || port > 65535 || host == "" {
		return nil, ErrMalformedURI
	}
	password, err := DecodeBase64(tail[4])
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"protocol": tail[1],
		"method":   tail[2],
		"obfs":     tail[3],
		"password": string(password),
	}
	name := ""
	if query != "" {
		for _, pair := range strings.Split(query, "&") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			if dec, err := DecodeBase64(v); err == nil {
				v = string(dec)
			}
			if k == "remarks" {
				name = v
				continue
			}
			params[k] = v
		}
	}

	return finishNode(&model.Node{
		Protocol: model.ProtocolSSR,
		Server:   host,
		Port:     port,
		Name:     name,
		Params:   params,
	}), nil
}

func formatSSR(n *model.Node) string {
	var sb strings.Builder
	sb.WriteString(n.Server)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(n.Port))
	for _, field := range [][]string{{"protocol"}, {"method", "cipher"}, {"obfs"}} {
		sb.WriteByte(':')
		sb.WriteString(paramFirst(n, field...))
	}
	sb.WriteByte(':')
	sb.WriteString(encodeBase64URL(n.Params["password"]))

	query := ssrQuery(n)
	if len(query) > 0 {
		sb.WriteString("/?")
		sb.WriteString(strings.Join(query, "&"))
	}
	return "ssr://" + encodeBase64URL(sb.String())
}

// ssrQuerySpellings accepts the Clash-document spellings of the SSR query
// keys alongside the link spellings.
var ssrQuerySpellings = map[string][]string{
	"obfsparam":  {"obfsparam", "obfs-param"},
	"protoparam": {"protoparam", "protocol-param"},
}

func ssrQuery(n *model.Node) []string {
	emitted := map[string]bool{"protocol": true, "method": true, "cipher": true, "obfs": true, "password": true}
	var query []string
	emit := func(k, v string) {
		query = append(query, k+"="+encodeBase64URL(v))
		emitted[k] = true
	}
	for _, k := range ssrQueryOrder {
		if k == "remarks" {
			emit(k, n.Name)
			continue
		}
		spellings, ok := ssrQuerySpellings[k]
		if !ok {
			spellings = []string{k}
		}
		present := false
		for _, s := range spellings {
			if _, ok := n.Params[s]; ok {
				present = true
			}
			emitted[s] = true
		}
		if present {
			emit(k, paramFirst(n, spellings...))
		}
	}
	var extra []string
	for k := range n.Params {
		if !emitted[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		emit(k, n.Params[k])
	}
	return query
}
