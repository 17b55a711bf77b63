package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := Execute("test", args, &buf)
	return buf.String(), err
}

func testArgs(t *testing.T, dir string, args ...string) []string {
	t.Helper()
	t.Setenv("LDA_CACHE_DIR", filepath.Join(dir, "pdfs"))
	return append(args,
		"--data-dir", dir,
		"--database", filepath.Join(dir, "lda.db"),
		"--topics", filepath.Join(dir, "topics.yaml"),
	)
}

func TestInitCreatesDatabaseAndTopics(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, testArgs(t, dir, "init")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "initialized") {
		t.Errorf("out = %q", out)
	}
	for _, f := range []string{"lda.db", "topics.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("%s not created: %v", f, err)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "init")...); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, testArgs(t, dir, "init")...); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
}

func TestStatsOnFreshDatabase(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "init")...); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, testArgs(t, dir, "stats")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "documents: 0") || !strings.Contains(out, "tags: 0") {
		t.Errorf("out = %q", out)
	}
}

func TestSearchNoMatches(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "init")...); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, testArgs(t, dir, "search", "underpass")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no matches") {
		t.Errorf("out = %q", out)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "search")...); err == nil {
		t.Error("expected usage error without a query")
	}
}

func TestScrapeEmptyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><div class="downloads"></div><div class="nav"><a href="/about.html">About</a></div></body></html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "init")...); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, testArgs(t, dir, "scrape",
		"--url", srv.URL, "--selector", "div.downloads", "--delay", "0s")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "found 0") {
		t.Errorf("out = %q", out)
	}
}

func TestInvalidConfigurationRejected(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, testArgs(t, dir, "stats", "--base-url", "")...); err == nil {
		t.Error("expected validation error for empty base URL")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
}
