package codec

import (
	"strings"

	"gopkg.in/yaml.v3"

	"subpool/subpool/model"
)

// clashDocument is the structured multi-document text format: a mapping with
// a top-level proxies sequence.
type clashDocument struct {
	Proxies []map[string]any `yaml:"proxies"`
}

// ParseClashDocument parses a Clash-style proxy list. It returns
// ErrDecodeFailed when the body is not such a document; entries of an
// unsupported type or without an endpoint are dropped and counted.
func ParseClashDocument(body []byte) (nodes []*model.Node, dropped int, err error) {
	var doc clashDocument
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, 0, ErrDecodeFailed
	}
	if len(doc.Proxies) == 0 {
		return nil, 0, ErrDecodeFailed
	}

	for _, entry := range doc.Proxies {
		n, ok := clashEntryToNode(entry)
		if !ok {
			dropped++
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, dropped, nil
}

func clashEntryToNode(entry map[string]any) (*model.Node, bool) {
	proto := model.Protocol(strings.ToLower(yamlString(entry["type"])))
	switch proto {
	case model.ProtocolSS, model.ProtocolSSR, model.ProtocolVMess, model.ProtocolVLESS, model.ProtocolTrojan:
	default:
		return nil, false
	}

	server := strings.Trim(yamlString(entry["server"]), "[]")
	port, err := jsonPort(entry["port"])
	if server == "" || err != nil {
		return nil, false
	}

	params := make(map[string]string, len(entry))
	for k, v := range entry {
		switch k {
		case "type", "name", "server", "port":
			continue
		}
		params[k] = yamlString(v)
	}

	return finishNode(&model.Node{
		Protocol: proto,
		Server:   server,
		Port:     port,
		Name:     yamlString(entry["name"]),
		Params:   params,
	}), true
}

// yamlString renders a scalar as-is and re-marshals nested values so the bag
// stays a flat string map.
func yamlString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		out, err := yaml.Marshal(t)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	default:
		return strings.TrimSpace(jsonString(t))
	}
}
