package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/triage-ai/errgate/internal/gate"
	"go.uber.org/zap"
)

// maxCaptureLine bounds a single JSONL record.
const maxCaptureLine = 4 << 20

// captured is one line of a capture file.
type captured struct {
	OffsetMs   int64  `json:"offset_ms"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace"`
	Severity   string `json:"severity"`
}

// forwarded is an event the gate let through.
type forwarded struct {
	Line     int    `json:"line"`
	OffsetMs int64  `json:"offset_ms"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Trace    string `json:"trace"`
}

type result struct {
	Events    int         `json:"events"`
	Forwarded []forwarded `json:"forwarded"`
	Stats     gate.Stats  `json:"stats"`
}

// replay feeds every captured event through a fresh gate whose clock reads
// the event's offset.
func replay(r io.Reader, cfg gate.Config, logger *zap.Logger) (*result, error) {
	var (
		base  = time.Unix(0, 0).UTC()
		now   = base
		out   = &result{Forwarded: []forwarded{}}
		event captured
		line  int
	)

	g := gate.NewEventGate(
		gate.HandlerFunc(func(message, trace string, severity gate.Severity) {
			out.Forwarded = append(out.Forwarded, forwarded{
				Line:     line,
				OffsetMs: event.OffsetMs,
				Severity: severity.String(),
				Message:  message,
				Trace:    trace,
			})
		}),
		gate.WithConfig(cfg),
		gate.WithLogger(logger),
		gate.WithClock(func() time.Time { return now }),
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCaptureLine)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		event = captured{}
		if err := json.Unmarshal([]byte(text), &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		severity := gate.SeverityError
		if event.Severity != "" {
			s, err := gate.ParseSeverity(event.Severity)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			severity = s
		}

		now = base.Add(time.Duration(event.OffsetMs) * time.Millisecond)
		out.Events++
		g.Evaluate(event.Message, event.StackTrace, severity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}

	out.Stats = g.Stats()
	return out, nil
}

func writeJSON(w io.Writer, res *result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeText(w io.Writer, res *result) error {
	bw := bufio.NewWriter(w)
	for _, f := range res.Forwarded {
		fmt.Fprintf(bw, "+%dms  %-9s  %s  (line %d)\n", f.OffsetMs, f.Severity, f.Message, f.Line)
		if f.Trace != "" {
			for _, l := range strings.Split(f.Trace, "\n") {
				fmt.Fprintf(bw, "    %s\n", l)
			}
		}
	}

	s := res.Stats
	fmt.Fprintf(bw, "\n%d events, %d forwarded\n", res.Events, s.Forwarded)
	fmt.Fprintf(bw, "  dropped: inactive=%d building=%d duplicate=%d throttled=%d\n",
		s.Inactive, s.Building, s.Duplicate, s.Throttled)
	return bw.Flush()
}
