package types

// CommonConf contains run-level behavior configuration.
type CommonConf struct {
	SubscriptionFile string `ini:"subscription_file"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// StoreConf locates the persisted state files.
type StoreConf struct {
	DataDir    string `ini:"data_dir"`
	KeepBodies bool   `ini:"keep_bodies"`
}

// FetcherConf controls subscription retrieval.
type FetcherConf struct {
	TimeoutS     int `ini:"timeout_s"`
	Concurrency  int `ini:"concurrency"`
	MaxRedirects int `ini:"max_redirects"`
}

// ValidatorConf controls the TCP probe stage.
type ValidatorConf struct {
	TCPTimeoutS  int     `ini:"tcp_timeout_s"`
	BatchSize    int     `ini:"batch_size"`
	BatchDelayS  float64 `ini:"batch_delay_s"`
	MaxLatencyMS int     `ini:"max_latency_ms"`
	Mode         string  `ini:"mode"` // "strict" (TCP) or "lenient" (DNS-only)
}

// OutputConf controls the emitted artifacts.
type OutputConf struct {
	Dir       string `ini:"dir"`
	MaxNodes  int    `ini:"max_nodes"`
	MiniNodes int    `ini:"mini_nodes"`
}

// Config is the unified configuration structure for the aggregator.
type Config struct {
	CommonConf    `ini:"common"`
	LogConf       `ini:"log"`
	StoreConf     `ini:"store"`
	FetcherConf   `ini:"fetcher"`
	ValidatorConf `ini:"validator"`
	OutputConf    `ini:"output"`
}
