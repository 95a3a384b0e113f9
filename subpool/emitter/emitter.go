// Package emitter hands the ranked node list to the configuration writer.
// The writer is always invoked, even with zero nodes: downstream publication
// pipelines rely on placeholder artifacts being present and well formed.
package emitter

import (
	"subpool/internal/shared/logger"
	"subpool/subpool/model"
)

// Writer produces the output artifacts from a ranked node list. An empty
// list is an explicit signal, not an error: the writer must still produce
// syntactically valid empty artifacts.
type Writer interface {
	Write(ranked []*model.Node, report *model.ValidationReport) error
}

type Emitter struct {
	writer Writer
}

func New(w Writer) *Emitter {
	return &Emitter{writer: w}
}

// Emit invokes the writer with the validator's ranked output.
func (e *Emitter) Emit(ranked []*model.Node, report *model.ValidationReport) error {
	l := logger.WithComponent("Emitter")
	if len(ranked) == 0 {
		l.Warn().Msg("No valid nodes this run; emitting placeholder artifacts.")
	}
	if err := e.writer.Write(ranked, report); err != nil {
		return err
	}
	l.Info().Int("nodes", len(ranked)).Msg("Artifacts written.")
	return nil
}
