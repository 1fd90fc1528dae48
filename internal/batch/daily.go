package batch

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/campusbridge/discovery/internal/engine"
)

// Stats are the final summary counters of an unattended run, pattern-matched
// from accumulated engine output after exit.
type Stats struct {
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	TotalProcessed int `json:"total_processed"`
}

// Summary is the one JSON object a daily run returns.
type Summary struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Stats     Stats     `json:"stats"`
	ExitCode  int       `json:"exitCode"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyRunner executes the scheduled, non-streaming discovery pass: all
// sources, a rotating focus area, and a higher result ceiling.
type DailyRunner struct {
	eng      engine.Engine
	rotation []string
	limit    int
	timeout  time.Duration
	queue    *RecheckQueue
	logger   *log.Logger
}

// NewDailyRunner wires the unattended run. queue may be nil when Redis is
// not configured.
func NewDailyRunner(eng engine.Engine, rotation []string, limit int, timeout time.Duration, queue *RecheckQueue) *DailyRunner {
	if limit <= 0 {
		limit = 50
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &DailyRunner{
		eng:      eng,
		rotation: rotation,
		limit:    limit,
		timeout:  timeout,
		queue:    queue,
		logger:   log.New(log.Writer(), "[DAILY] ", log.LstdFlags),
	}
}

// FocusFor picks the rotation entry for a given day, so consecutive daily
// runs sweep different focus areas.
func (d *DailyRunner) FocusFor(t time.Time) string {
	if len(d.rotation) == 0 {
		return "internships"
	}
	return d.rotation[t.YearDay()%len(d.rotation)]
}

// Run executes the engine to completion, buffering output, and parses the
// summary statistics from it.
func (d *DailyRunner) Run(ctx context.Context) (Summary, error) {
	focus := d.FocusFor(time.Now())
	opts := engine.Options{
		Mode:       engine.ModeDaily,
		Sources:    append([]string{}, allSources...),
		FocusAreas: []string{focus},
		Limit:      d.limit,
		Timeout:    d.timeout,
	}
	if d.queue != nil {
		if n, err := d.queue.Len(ctx); err == nil && n > 0 {
			d.logger.Printf("recheck queue holds %d urls", n)
		}
	}

	sess, err := d.eng.Start(ctx, opts)
	if err != nil {
		return Summary{}, fmt.Errorf("start daily discovery: %w", err)
	}
	defer sess.Cancel()

	var out strings.Builder
	scanner := bufio.NewScanner(sess.Stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out.WriteString(scanner.Text())
		out.WriteByte('\n')
	}
	if sess.Stderr != nil {
		errScan := bufio.NewScanner(sess.Stderr)
		for errScan.Scan() {
			d.logger.Printf("engine stderr: %s", errScan.Text())
		}
	}

	code, waitErr := sess.Wait()
	stats := ParseStats(out.String())
	summary := Summary{
		Success:   waitErr == nil,
		Stats:     stats,
		ExitCode:  code,
		Timestamp: time.Now().UTC(),
	}
	switch {
	case waitErr == engine.ErrTimeout:
		summary.Message = fmt.Sprintf("daily discovery timed out after %s", d.timeout)
	case waitErr != nil:
		summary.Message = fmt.Sprintf("daily discovery failed (exit %d)", code)
	default:
		summary.Message = fmt.Sprintf("daily discovery complete (focus: %s)", focus)
	}
	d.logger.Printf("%s: %d ok / %d failed / %d processed", summary.Message,
		stats.Successful, stats.Failed, stats.TotalProcessed)
	return summary, waitErr
}

var (
	successfulRe = regexp.MustCompile(`(?i)successful:?\s*(\d+)`)
	failedRe     = regexp.MustCompile(`(?i)failed:?\s*(\d+)`)
	processedRe  = regexp.MustCompile(`(?i)total processed:?\s*(\d+)`)
)

// ParseStats extracts the run counters from accumulated output. Missing
// counters stay zero; the summary line format is owned by the engine and is
// treated as fragile.
func ParseStats(output string) Stats {
	var s Stats
	if m := successfulRe.FindStringSubmatch(output); m != nil {
		s.Successful, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		s.Failed, _ = strconv.Atoi(m[1])
	}
	if m := processedRe.FindStringSubmatch(output); m != nil {
		s.TotalProcessed, _ = strconv.Atoi(m[1])
	}
	return s
}
