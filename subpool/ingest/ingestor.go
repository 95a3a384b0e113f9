// Package ingest turns fetched subscription bodies into a deduplicated node
// list. Classification order per body: Clash-style document, then
// base64-wrapped URI list, then raw URI list.
package ingest

import (
	"strings"

	"subpool/internal/shared/logger"
	"subpool/subpool/codec"
	"subpool/subpool/model"
)

// Tally is the per-subscription ingestion outcome.
type Tally struct {
	FetchOK   bool
	Parsed    int // nodes successfully parsed from the body
	Unique    int // nodes attributed to this subscription after dedup
	Discarded int // non-empty lines or entries that did not parse
}

type Ingestor struct{}

func New() *Ingestor {
	return &Ingestor{}
}

// Ingest processes results in the given order and dedups nodes on their
// canonical identity, first-wins. Node order is first-seen order.
func (ing *Ingestor) Ingest(results []*model.FetchResult) ([]*model.Node, map[string]*Tally) {
	l := logger.WithComponent("Ingestor")

	var nodes []*model.Node
	seen := map[string]*model.Node{}
	tallies := make(map[string]*Tally, len(results))

	for _, res := range results {
		tally := &Tally{}
		tallies[res.URL] = tally
		if res.Err != nil {
			continue
		}
		tally.FetchOK = true

		parsed, discarded := parseBody(res.Body)
		tally.Parsed = len(parsed)
		tally.Discarded = discarded

		for _, n := range parsed {
			n.Subscription = res.URL
			key := n.CanonicalKey()
			if first, dup := seen[key]; dup {
				// First-wins. A collision with different credentials may hide
				// a genuinely different node; surface it for the operator.
				l.Debug().Str("key", key).Str("kept", first.Subscription).Str("dropped", res.URL).Msg("Duplicate canonical identity.")
				continue
			}
			seen[key] = n
			nodes = append(nodes, n)
			tally.Unique++
		}
	}

	l.Info().Int("nodes", len(nodes)).Int("subscriptions", len(results)).Msg("Ingestion finished.")
	return nodes, tallies
}

// parseBody classifies one body and parses it into nodes.
func parseBody(body []byte) ([]*model.Node, int) {
	if nodes, dropped, err := codec.ParseClashDocument(body); err == nil {
		return nodes, dropped
	}

	text := string(body)
	if decoded, err := codec.DecodeBase64(strings.TrimSpace(text)); err == nil {
		text = string(decoded)
	}
	return parseLines(text)
}

func parseLines(text string) ([]*model.Node, int) {
	var nodes []*model.Node
	discarded := 0
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !codec.HasKnownScheme(line) {
			discarded++
			continue
		}
		n, err := codec.Parse(line)
		if err != nil {
			discarded++
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, discarded
}
