package batch

import (
	"context"
	"testing"
	"time"

	"github.com/campusbridge/discovery/internal/engine"
)

type stubEngine struct {
	stdout string
	stderr string
	code   int
	opts   engine.Options
}

func (s *stubEngine) Start(_ context.Context, opts engine.Options) (*engine.Session, error) {
	s.opts = opts
	return engine.NewStubSession(s.stdout, s.stderr, s.code), nil
}

func TestDailyRunParsesSummary(t *testing.T) {
	eng := &stubEngine{stdout: "Batch run done\nSuccessful: 42\nFailed: 3\nTotal processed: 45\n"}
	runner := NewDailyRunner(eng, []string{"internships"}, 50, time.Minute, nil)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Success {
		t.Fatal("expected success")
	}
	if summary.Stats.Successful != 42 || summary.Stats.Failed != 3 || summary.Stats.TotalProcessed != 45 {
		t.Fatalf("stats = %+v", summary.Stats)
	}
	if eng.opts.Mode != engine.ModeDaily {
		t.Fatalf("mode = %s", eng.opts.Mode)
	}
	if len(eng.opts.Sources) != len(allSources) {
		t.Fatalf("daily run did not sweep all sources: %v", eng.opts.Sources)
	}
}

func TestDailyRunReportsFailure(t *testing.T) {
	eng := &stubEngine{stdout: "partial output\n", stderr: "engine crashed\n", code: 2}
	runner := NewDailyRunner(eng, nil, 0, 0, nil)

	summary, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if summary.Success {
		t.Fatal("summary claims success on failure")
	}
	if summary.ExitCode != 2 {
		t.Fatalf("exit code = %d", summary.ExitCode)
	}
}

func TestParseStatsMissingCountersStayZero(t *testing.T) {
	s := ParseStats("no counters in this output")
	if s.Successful != 0 || s.Failed != 0 || s.TotalProcessed != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestFocusRotation(t *testing.T) {
	runner := NewDailyRunner(&stubEngine{}, []string{"internships", "scholarships", "competitions"}, 0, 0, nil)
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day4 := day1.AddDate(0, 0, 3)
	if runner.FocusFor(day1) == runner.FocusFor(day2) {
		t.Fatal("consecutive days share a focus")
	}
	if runner.FocusFor(day1) != runner.FocusFor(day4) {
		t.Fatal("rotation period broken")
	}
}

func TestFocusForEmptyRotation(t *testing.T) {
	runner := NewDailyRunner(&stubEngine{}, nil, 0, 0, nil)
	if got := runner.FocusFor(time.Now()); got != "internships" {
		t.Fatalf("default focus = %q", got)
	}
}
