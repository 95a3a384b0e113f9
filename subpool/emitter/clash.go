package emitter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"subpool/internal/shared/logger"
	"subpool/internal/shared/types"
	"subpool/subpool/codec"
	"subpool/subpool/model"
)

// Artifact file names.
const (
	fileClash     = "clash.yml"
	fileClashMini = "clash_mini.yml"
	fileNodes     = "nodes.txt"
	fileNodesMini = "nodes_mini.txt"
	fileStats     = "validation_stats.json"
)

// ClashWriter renders the ranked node list into the output artifacts: a full
// and a compact Clash configuration, the two matching flat URI lists, and the
// validation stats record.
type ClashWriter struct {
	dir       string
	miniNodes int
}

func NewClashWriter(cfg types.OutputConf) *ClashWriter {
	miniNodes := cfg.MiniNodes
	if miniNodes <= 0 {
		miniNodes = 20
	}
	return &ClashWriter{dir: cfg.Dir, miniNodes: miniNodes}
}

func (w *ClashWriter) Write(ranked []*model.Node, report *model.ValidationReport) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	mini := ranked
	if len(mini) > w.miniNodes {
		mini = mini[:w.miniNodes]
	}

	if err := w.writeConfig(fileClash, ranked); err != nil {
		return err
	}
	if err := w.writeConfig(fileClashMini, mini); err != nil {
		return err
	}
	if err := w.writeURIList(fileNodes, ranked); err != nil {
		return err
	}
	if err := w.writeURIList(fileNodesMini, mini); err != nil {
		return err
	}
	return w.writeStats(report)
}

func (w *ClashWriter) writeConfig(name string, nodes []*model.Node) error {
	proxies := make([]map[string]any, 0, len(nodes))
	names := make([]string, 0, len(nodes))
	seen := map[string]int{}
	for _, n := range nodes {
		entry := nodeToClash(n)
		// Clash requires unique proxy names.
		base := entry["name"].(string)
		if c := seen[base]; c > 0 {
			entry["name"] = fmt.Sprintf("%s %d", base, c+1)
		}
		seen[base]++
		proxies = append(proxies, entry)
		names = append(names, entry["name"].(string))
	}

	// Groups must never reference an empty member list; the placeholder
	// configuration falls back to DIRECT.
	groupMembers := names
	if len(groupMembers) == 0 {
		groupMembers = []string{"DIRECT"}
	}

	doc := map[string]any{
		"mixed-port": 7890,
		"allow-lan":  false,
		"mode":       "rule",
		"log-level":  "info",
		"proxies":    proxies,
		"proxy-groups": []map[string]any{
			{
				"name":    "Proxy",
				"type":    "select",
				"proxies": append([]string{"Auto"}, groupMembers...),
			},
			{
				"name":     "Auto",
				"type":     "url-test",
				"proxies":  groupMembers,
				"url":      "https://www.google.com/generate_204",
				"interval": 300,
			},
		},
		"rules": []string{
			"IP-CIDR,10.0.0.0/8,DIRECT,no-resolve",
			"IP-CIDR,172.16.0.0/12,DIRECT,no-resolve",
			"IP-CIDR,192.168.0.0/16,DIRECT,no-resolve",
			"IP-CIDR,127.0.0.0/8,DIRECT,no-resolve",
			"MATCH,Proxy",
		},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(w.dir, name), data, 0o644)
}

// clashFieldNames translates the URI parsers' parameter spellings into the
// Clash proxy vocabulary. Keys already in the Clash spelling pass through.
var clashFieldNames = map[model.Protocol]map[string]string{
	model.ProtocolSS: {"method": "cipher"},
	model.ProtocolSSR: {
		"method":     "cipher",
		"obfsparam":  "obfs-param",
		"protoparam": "protocol-param",
	},
	model.ProtocolVMess: {
		"id":  "uuid",
		"aid": "alterId",
		"scy": "cipher",
		"net": "network",
	},
}

// nodeToClash maps a node onto a Clash proxy entry: shared header, renamed
// well-known fields, the rest of the parameter bag verbatim.
func nodeToClash(n *model.Node) map[string]any {
	entry := map[string]any{
		"name":   n.Name,
		"type":   string(n.Protocol),
		"server": n.Server,
		"port":   n.Port,
	}
	renames := clashFieldNames[n.Protocol]
	for k, v := range n.Params {
		if clash, ok := renames[k]; ok {
			k = clash
		}
		if _, taken := entry[k]; !taken {
			entry[k] = v
		}
	}
	return entry
}

func (w *ClashWriter) writeURIList(name string, nodes []*model.Node) error {
	l := logger.WithComponent("Emitter")
	var sb strings.Builder
	for _, n := range nodes {
		uri, err := codec.Format(n)
		if err != nil {
			l.Warn().Err(err).Str("node", n.Name).Msg("Skipping node in URI list.")
			continue
		}
		sb.WriteString(uri)
		sb.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(w.dir, name), []byte(sb.String()), 0o644)
}

type statsRecord struct {
	Timestamp         string                              `json:"timestamp"`
	TotalNodes        int                                 `json:"total_nodes"`
	ValidNodes        int                                 `json:"valid_nodes"`
	SuccessRate       float64                             `json:"success_rate"`
	SubscriptionStats map[string]*model.SubscriptionStats `json:"subscription_stats"`
}

func (w *ClashWriter) writeStats(report *model.ValidationReport) error {
	rec := statsRecord{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		TotalNodes:        report.TotalNodes,
		ValidNodes:        report.ValidNodes,
		SuccessRate:       report.SuccessRate(),
		SubscriptionStats: report.PerSubscription,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return os.WriteFile(filepath.Join(w.dir, fileStats), append(data, '\n'), 0o644)
}
