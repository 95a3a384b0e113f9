// Package validator probes node endpoints with bounded-parallelism TCP
// connects. A probe measures the three-way handshake only: no bytes are
// sent, no TLS, no protocol handshake.
package validator

import (
	"context"
	"errors"
	"net"
	"os"
	"sort"
	"strconv"
	"syscall"
	"time"

	"subpool/internal/shared/logger"
	"subpool/internal/shared/types"
	"subpool/subpool/model"
)

// ModeLenient replaces the TCP probe with name resolution; any resolvable
// host is valid with a synthetic latency of 0.
const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

type Validator struct {
	timeout    time.Duration
	batchSize  int
	batchDelay time.Duration
	maxLatency int64
	mode       string
	maxOutput  int

	resolver *net.Resolver
}

func New(cfg types.ValidatorConf, maxOutput int) *Validator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxOutput <= 0 {
		maxOutput = 100
	}
	mode := cfg.Mode
	if mode != ModeLenient {
		mode = ModeStrict
	}
	return &Validator{
		timeout:    time.Duration(cfg.TCPTimeoutS) * time.Second,
		batchSize:  batchSize,
		batchDelay: time.Duration(cfg.BatchDelayS * float64(time.Second)),
		maxLatency: int64(cfg.MaxLatencyMS),
		mode:       mode,
		maxOutput:  maxOutput,
		resolver:   net.DefaultResolver,
	}
}

// Validate probes every node, populating Valid, LatencyMS and FailReason in
// place, and returns the aggregate report plus the ranked top slice of valid
// nodes (latency ascending, ties in insertion order).
func (v *Validator) Validate(ctx context.Context, nodes []*model.Node) (*model.ValidationReport, []*model.Node) {
	l := logger.WithComponent("Validator")
	start := time.Now()
	l.Info().Int("count", len(nodes)).Int("batch_size", v.batchSize).Str("mode", v.mode).Msg("Starting validation...")

	done := 0
	for offset := 0; offset < len(nodes); offset += v.batchSize {
		end := offset + v.batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[offset:end]

		if ctx.Err() != nil {
			for _, n := range nodes[offset:] {
				n.Valid = false
				n.FailReason = model.ReasonCancelled
			}
			done = len(nodes)
			break
		}

		v.runBatch(ctx, batch)
		done = end
		l.Info().Int("done", done).Int("total", len(nodes)).Msg("Batch complete.")

		// Throttle the outbound connect rate between batches.
		if end < len(nodes) && v.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(v.batchDelay):
			}
		}
	}

	report := v.buildReport(nodes, time.Since(start))
	ranked := v.rank(nodes)
	l.Info().
		Int("valid", report.ValidNodes).
		Int("total", report.TotalNodes).
		Int("ranked", len(ranked)).
		Int64("duration_ms", report.Duration.Milliseconds()).
		Msg("Validation finished.")
	return report, ranked
}

func (v *Validator) runBatch(ctx context.Context, batch []*model.Node) {
	results := make(chan struct{}, len(batch))
	for _, n := range batch {
		go func(n *model.Node) {
			v.probe(ctx, n)
			results <- struct{}{}
		}(n)
	}
	for range batch {
		<-results
	}
}

// probe opens one TCP connection and measures syscall entry to handshake
// completion. DNS resolution shares the same timeout budget.
func (v *Validator) probe(ctx context.Context, n *model.Node) {
	pctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if v.mode == ModeLenient {
		_, err := v.resolver.LookupHost(pctx, n.Server)
		if err != nil {
			n.Valid = false
			n.FailReason = classify(ctx, err)
			return
		}
		n.Valid = true
		n.LatencyMS = 0
		return
	}

	addr := net.JoinHostPort(n.Server, strconv.Itoa(n.Port))
	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(pctx, "tcp", addr)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		n.Valid = false
		n.FailReason = classify(ctx, err)
		return
	}
	conn.Close()

	n.LatencyMS = latency
	if latency > v.maxLatency {
		n.Valid = false
		n.FailReason = model.ReasonOther
		return
	}
	n.Valid = true
	n.FailReason = ""
}

// classify maps a probe error onto the failure taxonomy. The run context is
// consulted first so a run-level cancellation never reads as a timeout.
func classify(runCtx context.Context, err error) string {
	if runCtx.Err() != nil {
		return model.ReasonCancelled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return model.ReasonTimeout
		}
		return model.ReasonDNSFailed
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return model.ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ReasonRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return model.ReasonUnreachable
	}
	return model.ReasonOther
}

func (v *Validator) buildReport(nodes []*model.Node, duration time.Duration) *model.ValidationReport {
	report := &model.ValidationReport{
		TotalNodes:      len(nodes),
		PerSubscription: map[string]*model.SubscriptionStats{},
		Duration:        duration,
	}
	latencySums := map[string]int64{}
	for _, n := range nodes {
		stats, ok := report.PerSubscription[n.Subscription]
		if !ok {
			stats = &model.SubscriptionStats{}
			report.PerSubscription[n.Subscription] = stats
		}
		stats.Total++
		if n.Valid {
			stats.Valid++
			latencySums[n.Subscription] += n.LatencyMS
			report.ValidNodes++
		}
	}
	for url, stats := range report.PerSubscription {
		if stats.Valid > 0 {
			stats.AvgLatencyMS = float64(latencySums[url]) / float64(stats.Valid)
		}
	}
	return report
}

func (v *Validator) rank(nodes []*model.Node) []*model.Node {
	var valid []*model.Node
	for _, n := range nodes {
		if n.Valid {
			valid = append(valid, n)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].LatencyMS < valid[j].LatencyMS
	})
	if len(valid) > v.maxOutput {
		valid = valid[:v.maxOutput]
	}
	return valid
}
