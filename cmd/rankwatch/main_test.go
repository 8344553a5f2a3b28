package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
	"github.com/FranksOps/rankwatch/internal/storage/jsonbackend"
	"github.com/FranksOps/rankwatch/internal/storage/sqlite"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", buf.String())
	}

	if _, err := newLogger("loud", "text", &buf); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := newLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"r.xlsx", "r.CSV", "r.json", "r.db", "r.sqlite"} {
		b, err := openBackend(ctx, filepath.Join(t.TempDir(), name), sheetOptions{}, nil)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		_ = b.Close()
	}
	if _, err := openBackend(ctx, "report.txt", sheetOptions{}, nil); !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("expected errUnsupportedFormat, got %v", err)
	}
	if _, err := openBackend(ctx, "sheet:", sheetOptions{}, nil); err == nil {
		t.Error("expected error for sheet target without spreadsheet id")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		links := map[string][]string{
			"mba colleges": {"https://x.com", "https://www.acme.com/mba"},
			"GRE exam":     {"https://acme.com/gre"},
		}[r.URL.Query().Get("q")]
		var organic []map[string]string
		for _, l := range links {
			organic = append(organic, map[string]string{"title": "t", "link": l})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"organic_results": organic})
	}))
	defer server.Close()

	if err := os.WriteFile("keywords.csv", []byte("KW\nmba colleges\ngre\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("previous.csv", []byte("keyword,acme_rank\nmba colleges,5\ngre,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "check",
		"-i", "keywords.csv",
		"-o", "report.csv,report.json",
		"--previous", "previous.csv",
		"--summary-json", "summary.json",
		"--api-key", "k",
		"--endpoint", server.URL,
		"--target", "acme.com",
		"--keyword-delay", "0s",
	)
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	for _, want := range []string{"[1/2] mba colleges: 2", `gre (searched "GRE exam"): 1`, "Improved:  1", "No Change: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}

	csvB, _ := csvbackend.New("report.csv")
	got, err := csvB.Load(context.Background())
	if err != nil {
		t.Fatalf("load csv report: %v", err)
	}
	if got.Columns[0] != "keyword" || got.Columns[1] != "acme_rank" || got.Columns[2] != "previous_rank" {
		t.Errorf("unexpected columns %v", got.Columns)
	}
	if got.Rows[0].Value(3) != "+3" || got.Rows[0].Value(4) != "Improved" {
		t.Errorf("unexpected first row %v", got.Rows[0].Values)
	}

	jsonB, _ := jsonbackend.New("report.json")
	js, err := jsonB.Load(context.Background())
	if err != nil {
		t.Fatalf("load json report: %v", err)
	}
	if js.Rows[0].Highlight != storage.HighlightGood || js.HighlightColumn != "acme_rank" {
		t.Errorf("expected highlight on improved row, got %+v", js.Rows[0])
	}

	if _, err := os.Stat("summary.json"); err != nil {
		t.Errorf("summary file not written: %v", err)
	}
}

func TestCheckCommand_InterruptedSummaryCountsAllKeywords(t *testing.T) {
	t.Chdir(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			cancel()
		}
		fmt.Fprint(w, `{"organic_results": [{"title": "t", "link": "https://acme.com/"}]}`)
	}))
	defer server.Close()

	if err := os.WriteFile("keywords.csv", []byte("KW\nmba\ncat\ngre\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runCLIContext(t, ctx, "check",
		"-i", "keywords.csv",
		"-o", "report.csv",
		"--summary-json", "summary.json",
		"--api-key", "k",
		"--endpoint", server.URL,
		"--target", "acme.com",
		"--keyword-delay", "0s",
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled run, got %v", err)
	}

	data, err := os.ReadFile("summary.json")
	if err != nil {
		t.Fatalf("partial summary not written: %v", err)
	}
	var summary struct {
		TotalKeywords int
		Processed     int
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalKeywords != 3 {
		t.Errorf("expected 3 keywords in summary, got %d", summary.TotalKeywords)
	}
	if summary.Processed >= 3 {
		t.Errorf("expected a partial run, got %d processed", summary.Processed)
	}
	if _, err := os.Stat("report.csv"); err != nil {
		t.Errorf("partial report not written: %v", err)
	}
}

func TestCheckCommand_MissingKeywordColumn(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("keywords.csv", []byte("term\nmba\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, "check", "-i", "keywords.csv", "--api-key", "k", "--target", "acme.com")
	if err == nil || !strings.Contains(err.Error(), "KW") {
		t.Errorf("expected missing KW column error, got %v", err)
	}
	if _, statErr := os.Stat("keyword_ranks.xlsx"); statErr == nil {
		t.Error("no report should be written when the input is invalid")
	}
}

func TestCheckCommand_BadPreviousFailsBeforeSearching(t *testing.T) {
	t.Chdir(t.TempDir())

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"organic_results": []}`)
	}))
	defer server.Close()

	if err := os.WriteFile("keywords.csv", []byte("KW\nmba\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("wrong.csv", []byte("keyword,other_rank\nmba,5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name, previous, want string
	}{
		{"missing file", "typo.csv", "typo.csv"},
		{"missing rank column", "wrong.csv", "acme_rank"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, "check",
				"-i", "keywords.csv",
				"-o", "report.csv",
				"--previous", tc.previous,
				"--api-key", "k",
				"--endpoint", server.URL,
				"--target", "acme.com",
				"--keyword-delay", "0s",
			)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("expected no provider calls, got %d", n)
	}
}

func TestCheckCommand_RequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RANKWATCH_API_KEY", "")
	_, err := runCLI(t, "check", "-i", "keywords.csv", "--target", "acme.com")
	if err == nil || !strings.Contains(err.Error(), "api key") {
		t.Errorf("expected api key error, got %v", err)
	}
}

func TestCheckCommand_EmptyProxyFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("keywords.csv", []byte("KW\nmba\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("proxies.txt", []byte("# none yet\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, "check", "-i", "keywords.csv", "--api-key", "k", "--target", "acme.com", "--proxies", "proxies.txt")
	if err == nil || !strings.Contains(err.Error(), "no proxies") {
		t.Errorf("expected empty proxy file error, got %v", err)
	}
}

func TestCompareCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("now.csv", []byte("keyword,acme_rank,acme_url\nmba,7,u\ncat,2,v\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("then.csv", []byte("keyword,acme_rank\nmba,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "compare", "now.csv", "then.csv", "-o", "compared.json")
	if err != nil {
		t.Fatalf("compare failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 improved, 1 worsened, 0 unchanged, 1 n/a") {
		t.Errorf("unexpected output:\n%s", out)
	}

	b, _ := jsonbackend.New("compared.json")
	got, err := b.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got.Rows[0].Values) != "[mba 7 4 -3 Worsened u]" {
		t.Errorf("unexpected compared row %v", got.Rows[0].Values)
	}
}

func TestCompareCommand_SQLiteOutput(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("now.csv", []byte("keyword,acme_rank\nmba,3\ncat,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("then.csv", []byte("keyword,acme_rank\nmba,4\ncat,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if out, err := runCLI(t, "compare", "now.csv", "then.csv", "-o", "history.db"); err != nil {
		t.Fatalf("compare into new db failed: %v\n%s", err, out)
	}
	// default output is CURRENT, which already holds a run
	out, err := runCLI(t, "compare", "history.db", "then.csv")
	if err != nil {
		t.Fatalf("compare into existing db failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 improved, 0 worsened, 1 unchanged, 0 n/a") {
		t.Errorf("unexpected output:\n%s", out)
	}

	b, err := sqlite.New("history.db")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	got, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load latest run: %v", err)
	}
	if got.RunID == "" {
		t.Error("stored run has no id")
	}
	if strings.Join(got.Columns, ",") != "keyword,acme_rank,previous_rank,rank_diff,rank_change" {
		t.Errorf("compare columns stacked or missing: %v", got.Columns)
	}
	if got.Rows[0].Value(3) != "+1" {
		t.Errorf("unexpected first row %v", got.Rows[0].Values)
	}
}
