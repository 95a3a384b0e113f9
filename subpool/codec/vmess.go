package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"subpool/subpool/model"
)

// parseVMess decodes vmess://<base64> where the body is a JSON object.
// Recognized keys are v, ps, add, port, id, aid, scy, net, type, host, path,
// tls and sni; anything else is preserved verbatim in the parameter bag so
// the emitter can reproduce it.
func parseVMess(uri string) (*model.Node, error) {
	dec, err := DecodeBase64(strings.TrimPrefix(uri, "vmess://"))
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	d := json.NewDecoder(bytes.NewReader(dec))
	d.UseNumber()
	if err := d.Decode(&raw); err != nil {
		return nil, ErrDecodeFailed
	}

	server := jsonString(raw["add"])
	port, err := jsonPort(raw["port"])
	if server == "" || err != nil {
		return nil, ErrMalformedURI
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch k {
		case "add", "port", "ps":
			continue
		}
		params[k] = jsonString(v)
	}

	return finishNode(&model.Node{
		Protocol: model.ProtocolVMess,
		Server:   strings.Trim(server, "[]"),
		Port:     port,
		Name:     jsonString(raw["ps"]),
		Params:   params,
	}), nil
}

// vmessLinkSpellings maps Clash-document field names onto the link-body JSON
// names, applied when the bag lacks the link spelling.
var vmessLinkSpellings = map[string]string{
	"uuid":    "id",
	"alterId": "aid",
	"cipher":  "scy",
	"network": "net",
}

func formatVMess(n *model.Node) (string, error) {
	obj := make(map[string]any, len(n.Params)+3)
	for k, v := range n.Params {
		if link, ok := vmessLinkSpellings[k]; ok {
			if _, has := n.Params[link]; !has {
				k = link
			}
		}
		obj[k] = v
	}
	obj["add"] = n.Server
	obj["port"] = strconv.Itoa(n.Port)
	obj["ps"] = n.Name

	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode vmess body: %w", err)
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(data), nil
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func jsonPort(v any) (int, error) {
	port, err := strconv.Atoi(jsonString(v))
	if err != nil || port < 1 || port > 65535 {
		return 0, ErrMalformedURI
	}
	return port, nil
}
