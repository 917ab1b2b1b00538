package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// Property: Log Trim Arithmetic
// *For any* threshold and sequence of entries, an append to a file at or
// under the threshold adds exactly one line, and an append to a file over the
// threshold first drops floor(n/5) (at least one) of its n existing lines.
func TestProperty_LogSinkTrimArithmetic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "logsink-prop-*")
		if err != nil {
			rt.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		maxBytes := int64(rapid.IntRange(200, 2000).Draw(rt, "maxBytes"))
		entries := rapid.IntRange(1, 200).Draw(rt, "entries")
		path := filepath.Join(dir, "vaultd.log")
		sink, err := NewLogSink(path, maxBytes)
		if err != nil {
			rt.Fatalf("creating sink: %v", err)
		}

		for i := 0; i < entries; i++ {
			var before []string
			var size int64
			if info, statErr := os.Stat(path); statErr == nil {
				size = info.Size()
				before = readLinesRapid(rt, path)
			}

			msg := fmt.Sprintf("entry %d %s", i, rapid.StringMatching(`[a-z ]{0,40}`).Draw(rt, fmt.Sprintf("msg_%d", i)))
			if err := sink.Log(LevelInfo, msg); err != nil {
				rt.Fatalf("logging: %v", err)
			}
			after := readLinesRapid(rt, path)

			want := len(before) + 1
			if size > maxBytes {
				drop := len(before) / 5
				if drop < 1 {
					drop = 1
				}
				want = len(before) - drop + 1
			}
			if len(after) != want {
				rt.Fatalf("entry %d: line count = %d, want %d", i, len(after), want)
			}
		}
	})
}

func readLinesRapid(rt *rapid.T, path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		rt.Fatalf("reading log: %v", err)
	}
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	return lines
}
