package codec

import (
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"subpool/subpool/model"
)

// parseVLESS handles vless://<uuid>@<host>:<port>?<query>#<name>. The UUID is
// validated structurally; query keys, recognized or not, go into the bag.
func parseVLESS(uri string) (*model.Node, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, ErrMalformedURI
	}
	id := u.User.Username()
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrMalformedURI
	}
	host, port, err := urlHostPort(u)
	if err != nil {
		return nil, err
	}

	params := map[string]string{"uuid": id}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}

	return finishNode(&model.Node{
		Protocol: model.ProtocolVLESS,
		Server:   host,
		Port:     port,
		Name:     u.Fragment,
		Params:   params,
	}), nil
}

func formatVLESS(n *model.Node) string {
	return "vless://" + n.Params["uuid"] + "@" + n.HostPort() +
		encodeQuery(n.Params, "uuid") + "#" + url.PathEscape(n.Name)
}

// urlHostPort extracts host and port from a parsed URL, defaulting the port
// to 443 when absent.
func urlHostPort(u *url.URL) (string, int, error) {
	host := u.Hostname()
	if host == "" {
		return "", 0, ErrMalformedURI
	}
	port := 443
	if p := u.Port(); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return "", 0, ErrMalformedURI
		}
	}
	return host, port, nil
}

// encodeQuery renders every bag key except the excluded ones as a sorted
// query string, or nothing when the bag holds no query keys.
func encodeQuery(params map[string]string, exclude ...string) string {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	values := url.Values{}
	for k, v := range params {
		if !skip[k] {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
