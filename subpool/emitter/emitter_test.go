package emitter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"subpool/internal/shared/types"
	"subpool/subpool/model"
)

var artifactNames = []string{fileClash, fileClashMini, fileNodes, fileNodesMini, fileStats}

func newWriter(t *testing.T) (*ClashWriter, string) {
	t.Helper()
	dir := t.TempDir()
	return NewClashWriter(types.OutputConf{Dir: dir, MiniNodes: 2}), dir
}

func ssNode(name, server string, port int, latency int64) *model.Node {
	return &model.Node{
		Protocol: model.ProtocolSS,
		Server:   server,
		Port:     port,
		Name:     name,
		Params: map[string]string{
			"cipher":   "aes-256-gcm",
			"password": "secret",
		},
		Valid:     true,
		LatencyMS: latency,
	}
}

func emptyReport() *model.ValidationReport {
	return &model.ValidationReport{PerSubscription: map[string]*model.SubscriptionStats{}}
}

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func TestPlaceholderArtifactsOnEmptyRun(t *testing.T) {
	w, dir := newWriter(t)
	require.NoError(t, New(w).Emit(nil, emptyReport()))

	for _, name := range artifactNames {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing artifact %s", name)
	}

	// The empty Clash config stays parseable and its groups fall back to
	// DIRECT instead of referencing nothing.
	doc := readYAML(t, filepath.Join(dir, fileClash))
	groups, ok := doc["proxy-groups"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, groups)
	auto := groups[1].(map[string]any)
	assert.Equal(t, []any{"DIRECT"}, auto["proxies"])

	// URI lists are empty, not absent.
	data, err := os.ReadFile(filepath.Join(dir, fileNodes))
	require.NoError(t, err)
	assert.Empty(t, data)

	// Stats carry explicit zeros.
	raw, err := os.ReadFile(filepath.Join(dir, fileStats))
	require.NoError(t, err)
	var rec statsRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Zero(t, rec.TotalNodes)
	assert.Zero(t, rec.ValidNodes)
	assert.Zero(t, rec.SuccessRate)
	assert.NotEmpty(t, rec.Timestamp)
}

func TestWriteFullArtifacts(t *testing.T) {
	w, dir := newWriter(t)
	ranked := []*model.Node{
		ssNode("HK 1", "hk.example.com", 443, 80),
		ssNode("SG 1", "sg.example.com", 443, 120),
		ssNode("US 1", "us.example.com", 443, 200),
	}
	report := &model.ValidationReport{
		TotalNodes: 5,
		ValidNodes: 3,
		PerSubscription: map[string]*model.SubscriptionStats{
			"https://a.example/sub": {Total: 5, Valid: 3, AvgLatencyMS: 133},
		},
	}
	require.NoError(t, w.Write(ranked, report))

	doc := readYAML(t, filepath.Join(dir, fileClash))
	proxies := doc["proxies"].([]any)
	require.Len(t, proxies, 3)
	first := proxies[0].(map[string]any)
	assert.Equal(t, "HK 1", first["name"])
	assert.Equal(t, "ss", first["type"])
	assert.Equal(t, "hk.example.com", first["server"])
	assert.Equal(t, 443, first["port"])
	assert.Equal(t, "aes-256-gcm", first["cipher"])

	// Mini variants honor the cap, in rank order.
	mini := readYAML(t, filepath.Join(dir, fileClashMini))
	assert.Len(t, mini["proxies"].([]any), 2)

	data, err := os.ReadFile(filepath.Join(dir, fileNodes))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "ss://"), "line %q", line)
	}

	miniData, err := os.ReadFile(filepath.Join(dir, fileNodesMini))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(miniData)), "\n"), 2)

	raw, err := os.ReadFile(filepath.Join(dir, fileStats))
	require.NoError(t, err)
	var rec statsRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, 5, rec.TotalNodes)
	assert.Equal(t, 3, rec.ValidNodes)
	assert.InDelta(t, 0.6, rec.SuccessRate, 1e-9)
	require.Contains(t, rec.SubscriptionStats, "https://a.example/sub")
}

func TestClashEntriesUseClashFieldNames(t *testing.T) {
	w, dir := newWriter(t)
	ranked := []*model.Node{
		{
			Protocol: model.ProtocolSS,
			Server:   "s.example.com",
			Port:     8388,
			Name:     "link ss",
			Params:   map[string]string{"method": "aes-256-gcm", "password": "pw"},
		},
		{
			Protocol: model.ProtocolVMess,
			Server:   "v.example.com",
			Port:     10086,
			Name:     "link vmess",
			Params: map[string]string{
				"id":  "b831381d-6324-4d53-ad4f-8cda48b30811",
				"aid": "0",
				"scy": "auto",
				"net": "ws",
			},
		},
	}
	require.NoError(t, w.Write(ranked, emptyReport()))

	proxies := readYAML(t, filepath.Join(dir, fileClash))["proxies"].([]any)
	require.Len(t, proxies, 2)

	ss := proxies[0].(map[string]any)
	assert.Equal(t, "aes-256-gcm", ss["cipher"])
	assert.NotContains(t, ss, "method")

	vm := proxies[1].(map[string]any)
	assert.Equal(t, "b831381d-6324-4d53-ad4f-8cda48b30811", vm["uuid"])
	assert.Equal(t, "0", vm["alterId"])
	assert.Equal(t, "auto", vm["cipher"])
	assert.Equal(t, "ws", vm["network"])
	assert.NotContains(t, vm, "id")
	assert.NotContains(t, vm, "aid")
}

func TestURIListSkipsUnformattableNode(t *testing.T) {
	w, dir := newWriter(t)
	ranked := []*model.Node{
		ssNode("good", "s.example.com", 443, 10),
		{Protocol: model.Protocol("hysteria2"), Server: "h.example.com", Port: 443, Name: "bad"},
	}
	require.NoError(t, w.Write(ranked, emptyReport()))

	data, err := os.ReadFile(filepath.Join(dir, fileNodes))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "ss://"))
}

func TestDuplicateProxyNamesDisambiguated(t *testing.T) {
	w, dir := newWriter(t)
	ranked := []*model.Node{
		ssNode("Node", "a.example.com", 443, 10),
		ssNode("Node", "b.example.com", 443, 20),
		ssNode("Node", "c.example.com", 443, 30),
	}
	require.NoError(t, w.Write(ranked, emptyReport()))

	doc := readYAML(t, filepath.Join(dir, fileClash))
	seen := map[string]bool{}
	for _, p := range doc["proxies"].([]any) {
		name := p.(map[string]any)["name"].(string)
		assert.False(t, seen[name], "duplicate proxy name %q", name)
		seen[name] = true
	}
}
