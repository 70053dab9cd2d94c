package assembler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFakeFFmpeg(t *testing.T, dir string, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script is POSIX shell only")
	}
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func TestConcatSucceedsAndCleansUpParts(t *testing.T) {
	dir := t.TempDir()
	script := `
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -y) shift; out="$1" ;;
  esac
  shift
done
echo "time=00:00:01.00 bitrate=N/A" 1>&2
echo "done" > "$out"
`
	ffmpegPath := writeFakeFFmpeg(t, dir, script)

	part0 := filepath.Join(dir, "0.part")
	part1 := filepath.Join(dir, "1.part")
	os.WriteFile(part0, []byte("a"), 0o644)
	os.WriteFile(part1, []byte("b"), 0o644)

	m := NewFFmpegMuxer(ffmpegPath)
	if !m.Available() {
		t.Fatal("Available() = false, want true")
	}

	var samples []ProgressSample
	out := filepath.Join(dir, "out.mp4")
	err := m.Concat(context.Background(), []string{part0, part1}, out, ConcatOptions{
		TotalDurationSeconds: 2,
		TotalBytes:           2,
		OnProgress:           func(p ProgressSample) { samples = append(samples, p) },
	})
	if err != nil {
		t.Fatalf("Concat() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if _, err := os.Stat(part0); !os.IsNotExist(err) {
		t.Fatal("expected part0 to be removed after successful concat")
	}
}

func TestConcatFailsWithAssemblyErrorOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeFFmpeg(t, dir, "echo boom 1>&2\nexit 1\n")

	part0 := filepath.Join(dir, "0.part")
	os.WriteFile(part0, []byte("a"), 0o644)

	m := NewFFmpegMuxer(ffmpegPath)
	err := m.Concat(context.Background(), []string{part0}, filepath.Join(dir, "out.mp4"), ConcatOptions{})
	if err == nil {
		t.Fatal("expected error on non-zero exit")
	}
}

func TestAvailableFalseWhenBinaryMissing(t *testing.T) {
	m := NewFFmpegMuxer(filepath.Join(t.TempDir(), "does-not-exist"))
	if m.Available() {
		t.Fatal("Available() = true, want false")
	}
}

func TestConcatFailsFastWhenNoPartPaths(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeFFmpeg(t, dir, "exit 0\n")
	m := NewFFmpegMuxer(ffmpegPath)
	err := m.Concat(context.Background(), nil, filepath.Join(dir, "out.mp4"), ConcatOptions{})
	if err == nil {
		t.Fatal("expected error for empty part list")
	}
}
