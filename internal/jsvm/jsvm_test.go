package jsvm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestEvalReturnsExpressionValue(t *testing.T) {
	out, err := Eval(context.Background(), `"https://cdn.example/master.m3u8"`)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if out != "https://cdn.example/master.m3u8" {
		t.Fatalf("Eval() = %q", out)
	}
}

func TestEvalReturnsSourceGlobal(t *testing.T) {
	out, err := Eval(context.Background(), `var source = "https://cdn.example/master.m3u8"; 1 + 1;`)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if out != "https://cdn.example/master.m3u8" {
		t.Fatalf("Eval() = %q", out)
	}
}

func TestEvalHasNoDOM(t *testing.T) {
	_, err := Eval(context.Background(), `document.write("x")`)
	if err == nil {
		t.Fatal("expected a ReferenceError evaluating document, which the sandbox must not expose")
	}
}

func TestEvalTimesOutOnInfiniteLoop(t *testing.T) {
	start := time.Now()
	_, err := Eval(context.Background(), `while(true) {}`)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("Eval() took too long to time out")
	}
}

func TestEvalRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := Eval(ctx, `while(true) {}`)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestExtractPlaylistURLFindsPackerOutput(t *testing.T) {
	// A trivial packer-shaped payload: the function signature matches but
	// the body just assigns a literal URL to the `source` global, exercising
	// the extraction path without needing a real packed payload.
	page := `<html><script>eval(function(p,a,c,k,e,d){source="https://cdn.example/a/b.m3u8";}(1,2,3,[],4,5))</script></html>`
	url, err := ExtractPlaylistURL(context.Background(), page)
	if err != nil {
		t.Fatalf("ExtractPlaylistURL() error = %v", err)
	}
	if !strings.HasSuffix(url, "b.m3u8") {
		t.Fatalf("ExtractPlaylistURL() = %q", url)
	}
}

func TestExtractPlaylistURLErrorsWithoutPackerScript(t *testing.T) {
	_, err := ExtractPlaylistURL(context.Background(), `<html><body>nothing here</body></html>`)
	if err == nil {
		t.Fatal("expected error when no packer script is present")
	}
}
