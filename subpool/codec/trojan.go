package codec

import (
	"net/url"

	"subpool/subpool/model"
)

// parseTrojan handles trojan://<password>@<host>:<port>?<query>#<name>.
// The password is opaque: credential validation is out of scope.
func parseTrojan(uri string) (*model.Node, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, ErrMalformedURI
	}
	password := u.User.Username()
	if password == "" {
		return nil, ErrMalformedURI
	}
	host, port, err := urlHostPort(u)
	if err != nil {
		return nil, err
	}

	params := map[string]string{"password": password}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}

	return finishNode(&model.Node{
		Protocol: model.ProtocolTrojan,
		Server:   host,
		Port:     port,
		Name:     u.Fragment,
		Params:   params,
	}), nil
}

func formatTrojan(n *model.Node) string {
	return "trojan://" + url.User(n.Params["password"]).String() + "@" + n.HostPort() +
		encodeQuery(n.Params, "password") + "#" + url.PathEscape(n.Name)
}
