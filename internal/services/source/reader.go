package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
)

// Stats counts what happened to the lines read from a spool.
type Stats struct {
	Lines     int
	Counted   int
	Ignored   int
	Dropped   int
	Malformed int
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Counted += o.Counted
	s.Ignored += o.Ignored
	s.Dropped += o.Dropped
	s.Malformed += o.Malformed
}

// processLine decodes and dispatches one line. Blank lines are skipped.
func processLine(h Handler, line []byte, stats *Stats) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	stats.Lines++

	ev, err := Decode(line)
	if err != nil {
		stats.Malformed++
		logger.Warn("skipping spool line", "error", err)
		return
	}

	out, err := Dispatch(h, ev)
	if err != nil {
		stats.Malformed++
		logger.Warn("skipping spool event", "error", err)
		return
	}

	switch out {
	case kpm.OutcomeCounted, kpm.OutcomeNoOp:
		stats.Counted++
	case kpm.OutcomeIgnored:
		stats.Ignored++
	default:
		stats.Dropped++
	}
}

// ReadAll feeds every line of r to h. A trailing line without a newline is
// processed too. It stops early when ctx is cancelled.
func ReadAll(ctx context.Context, r io.Reader, h Handler) (Stats, error) {
	var stats Stats
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			processLine(h, line, &stats)
		}
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
	}
}
