package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestErrorLogConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errorLog.txt")
	el, err := OpenErrorLog(path)
	if err != nil {
		t.Fatal(err)
	}

	const writers, perWriter = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				el.Append(fmt.Sprintf("attempt %d failed", i), fmt.Sprintf("account %d", w), "direct")
			}
		}(w)
	}
	wg.Wait()
	if err := el.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines; want %d", len(lines), writers*perWriter)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] [✗] attempt ") || !strings.HasSuffix(line, " | direct") {
			t.Errorf("malformed line %q", line)
		}
	}
}

func TestErrorLogLineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errorLog.txt")
	el, err := OpenErrorLog(path)
	if err != nil {
		t.Fatal(err)
	}
	el.now = func() time.Time { return time.Date(2024, 1, 2, 13, 4, 5, 0, time.UTC) }

	el.Append("boom\nsecond line", "account 3 (...abcdef)", "http://proxy:8080")
	el.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[13:04:05] [✗] boom second line account 3 (...abcdef) | http://proxy:8080\n"
	if string(data) != want {
		t.Errorf("got %q; want %q", data, want)
	}
}

func TestErrorLogAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errorLog.txt")
	if err := os.WriteFile(path, []byte("old line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	el, err := OpenErrorLog(path)
	if err != nil {
		t.Fatal(err)
	}
	el.Append("new", "account 1", "direct")
	el.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "old line\n") || strings.Count(string(data), "\n") != 2 {
		t.Errorf("got %q", data)
	}
}

func TestNilErrorLog(t *testing.T) {
	var el *ErrorLog
	el.Append("dropped", "account 1", "direct")
	if err := el.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
