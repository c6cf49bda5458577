package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/cellgraph/internal/config"
	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/reactive"
)

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	return e.Code
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe to write from a server goroutine while
// the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"A", []string{"A"}},
		{"A,B,C", []string{"A", "B", "C"}},
		{" A , B ", []string{"A", "B"}},
	}
	for _, tt := range tests {
		got, err := parseSequence(tt.in)
		if err != nil {
			t.Fatalf("parseSequence(%q): %v", tt.in, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("parseSequence(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSequenceEmptyItem(t *testing.T) {
	_, err := parseSequence("A,,B")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := codeOf(t, err); code != "E160" {
		t.Errorf("code = %s, want E160", code)
	}
}

func TestComputeDiffMovesOneItem(t *testing.T) {
	out, err := computeDiff("A,B,C,D", "A,C,B,D")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Result, []string{"A", "C", "B", "D"}) {
		t.Errorf("result = %v", out.Result)
	}
	if out.Stats.Moved != 1 || out.Stats.Inserted != 0 || out.Stats.Ops != 1 {
		t.Errorf("stats = %+v, want one move in one op", out.Stats)
	}
	if len(out.Ops) != 1 || out.Ops[0].Kind != "move" {
		t.Errorf("ops = %+v", out.Ops)
	}
}

func TestComputeDiffRemovalsAndInserts(t *testing.T) {
	out, err := computeDiff("A,B,C", "C,D")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Removed, []string{"A", "B"}) {
		t.Errorf("removed = %v", out.Removed)
	}
	if !slices.Equal(out.Result, []string{"C", "D"}) {
		t.Errorf("result = %v", out.Result)
	}
	if out.Stats.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", out.Stats.Inserted)
	}
}

func TestComputeDiffDuplicate(t *testing.T) {
	_, err := computeDiff("A,B", "A,A")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := codeOf(t, err); code != "E040" {
		t.Errorf("code = %s, want E040", code)
	}
}

func TestRunDiffText(t *testing.T) {
	var buf bytes.Buffer
	if err := runDiff(&buf, "A,B", "A,B", false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "(no changes)") {
		t.Errorf("output missing no-changes line:\n%s", out)
	}
	if !strings.Contains(out, "result: A,B") {
		t.Errorf("output missing result line:\n%s", out)
	}
}

func TestRunDiffJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := runDiff(&buf, "", "X,Y", true); err != nil {
		t.Fatal(err)
	}
	var out diffOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if !slices.Equal(out.Result, []string{"X", "Y"}) {
		t.Errorf("result = %v", out.Result)
	}
	if out.Stats.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", out.Stats.Inserted)
	}
}

func TestDiffCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"diff", "A,B,C", "C,B,A"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "result: C,B,A") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}

func TestRunBench(t *testing.T) {
	p := benchProfile{Name: "tiny", Cells: 20, Flushes: 5, ListSize: 30, Rounds: 10}
	results, err := runBench(p, 100, 7, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Count == 0 {
			t.Errorf("%s: zero count", r.Name)
		}
	}

	var buf bytes.Buffer
	printBench(&buf, p, results)
	if !strings.Contains(buf.String(), "fan-out flush") {
		t.Errorf("table missing fan-out row:\n%s", buf.String())
	}
}

func TestBenchUnknownProfile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"bench", "--profile=huge"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error")
	}
	if code := codeOf(t, err); code != "E161" {
		t.Errorf("code = %s, want E161", code)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"scheduler":{"cycleLimit":-1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := &rootOptions{configPath: path}
	if _, err := opts.loadConfig(); err == nil {
		t.Fatal("expected validation error for a negative cycleLimit")
	}
}

func newTestDemo(t *testing.T) *demo {
	t.Helper()
	cfg := config.New()
	cfg.Live.Items = 5
	d, err := newDemo(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.feed.Close)
	return d
}

func TestDemoStepKeepsKeysUnique(t *testing.T) {
	d := newTestDemo(t)
	for i := 0; i < 200; i++ {
		d.step()
		if err := d.loop.RunPending(); err != nil {
			t.Fatal(err)
		}
		items := d.items.Value()
		seen := make(map[string]bool, len(items))
		for _, k := range items {
			if seen[k] {
				t.Fatalf("step %d: duplicate key %q in %v", i, k, items)
			}
			seen[k] = true
		}
		if !slices.Equal(d.feed.Items(), items) {
			t.Fatalf("step %d: feed model %v, cell %v", i, d.feed.Items(), items)
		}
	}
}

func TestDemoRoutes(t *testing.T) {
	d := newTestDemo(t)
	srv := httptest.NewServer(d.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var h health
	err = json.NewDecoder(resp.Body).Decode(&h)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Items != 5 || h.Seq != 0 {
		t.Errorf("health = %+v", h)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/shuffle", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /shuffle status = %d", resp.StatusCode)
	}
	if err := d.loop.RunPending(); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(d.feed.Items(), d.items.Value()) {
		t.Errorf("feed %v out of sync with cell %v", d.feed.Items(), d.items.Value())
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "cellgraph_flushes_total") {
		t.Errorf("metrics missing cellgraph_flushes_total")
	}
}

func TestDemoWithoutMetrics(t *testing.T) {
	cfg := config.New()
	cfg.Metrics.Enabled = false
	d, err := newDemo(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer d.feed.Close()

	srv := httptest.NewServer(d.routes())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want 404", resp.StatusCode)
	}
}

func TestRuntimeErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"cycle", &reactive.CycleError{Generations: 100, Dropped: 2}, "E001"},
		{"circular", reactive.ErrCircularDependency, "E002"},
		{"observer", &reactive.ObserverError{Cell: 1, Err: stderrors.New("boom")}, "E003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runtimeError(tt.err)
			if code := codeOf(t, err); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
			if !stderrors.Is(err, tt.err) {
				t.Errorf("%v should wrap %v", err, tt.err)
			}
		})
	}

	plain := stderrors.New("other")
	if got := runtimeError(plain); got != plain {
		t.Errorf("runtimeError(plain) = %v, want it unchanged", got)
	}
}

func TestDemoRunLogsCycleAndContinues(t *testing.T) {
	cfg := config.New()
	cfg.Scheduler.CycleLimit = 3
	cfg.Live.TickInterval = "1h"

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	d, err := newDemo(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer d.feed.Close()

	// An observer that always rewrites the cell it watches.
	s := reactive.NewScheduler(reactive.WithPoster(d.loop), reactive.WithLogger(quietLogger()), reactive.WithCycleLimit(3))
	n := reactive.NewCell(s, 0)
	n.Subscribe(func(v int) { n.Set(v + 1) })
	d.loop.Do(func() { n.Set(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "E001") {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run() = %v, want nil after cancel", err)
	}
	if !strings.Contains(logs.String(), "E001") {
		t.Errorf("cycle break was not logged with E001:\n%s", logs.String())
	}
}
