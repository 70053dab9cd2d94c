// Package jsvm is Component B: a sandboxed goja evaluation of the
// play-page's packer-obfuscated JavaScript, recovering the embedded media
// URL without a real browser.
package jsvm

import (
	"context"
	"regexp"
	"time"

	"github.com/dop251/goja"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
)

// packerRegexp matches the eval(function(p,a,c,k,e,d){...})(...) wrapper
// Dean Edwards' packer emits and the play page embeds its source URL in.
var packerRegexp = regexp.MustCompile(`eval\(function\(p,a,c,k,e,d\)\{[\s\S]*?\}\([\s\S]*?\)\)`)

// urlRegexp extracts the first http(s) URL containing ".m3u8" from the
// packer's decoded output.
var urlRegexp = regexp.MustCompile(`https?://[^"'\s\\]+\.m3u8[^"'\s\\]*`)

// evalTimeout bounds how long a single script is allowed to run before the
// evaluator is interrupted, per SPEC_FULL.md §4.B.
const evalTimeout = 5 * time.Second

// ExtractPlaylistURL locates the packer-wrapped script in pageBody,
// evaluates it in a sandboxed VM, and returns the HLS playlist URL it
// decodes to.
func ExtractPlaylistURL(ctx context.Context, pageBody string) (string, error) {
	script := packerRegexp.FindString(pageBody)
	if script == "" {
		return "", &animeerrors.DeobfuscationDetailError{Reason: "no packer script found in page body"}
	}

	decoded, err := Eval(ctx, script)
	if err != nil {
		return "", err
	}

	url := urlRegexp.FindString(decoded)
	if url == "" {
		return "", &animeerrors.DeobfuscationDetailError{Reason: "decoded script contains no m3u8 URL"}
	}
	return url, nil
}

// Eval runs script inside a fresh sandboxed VM exposing only the stubbed
// minimal environment runtimePreludeJS sets up, and returns the recovered
// output: the script's own `source` global if it set one, else the value
// the script evaluates to, else the first matching value found scanning
// the sandbox's remaining globals. The VM is hard-interrupted after
// evalTimeout or when ctx is cancelled, whichever comes first.
func Eval(ctx context.Context, script string) (string, error) {
	vm := goja.New()

	if _, err := vm.RunString(runtimePreludeJS); err != nil {
		return "", &animeerrors.DeobfuscationDetailError{Reason: "prelude setup failed: " + err.Error()}
	}

	timer := time.AfterFunc(evalTimeout, func() {
		vm.Interrupt("evaluation timed out")
	})
	defer timer.Stop()

	done := make(chan struct{})
	var interruptedByCtx bool
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				interruptedByCtx = true
				vm.Interrupt("context cancelled")
			case <-done:
			}
		}()
	}

	value, err := vm.RunString(script)
	close(done)
	if err != nil {
		if interruptedByCtx {
			return "", &animeerrors.DeobfuscationDetailError{Reason: "cancelled", TimedOut: false}
		}
		if _, ok := err.(*goja.InterruptedError); ok {
			return "", &animeerrors.DeobfuscationDetailError{TimedOut: true}
		}
		return "", &animeerrors.DeobfuscationDetailError{Reason: err.Error()}
	}

	if source := vm.Get("source"); source != nil && !goja.IsUndefined(source) && !goja.IsNull(source) {
		if s := source.String(); s != "" {
			return s, nil
		}
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		if s := value.String(); s != "" {
			return s, nil
		}
	}
	// Last resort: scan the remaining sandbox globals for a string value,
	// per §4.B ("scans the sandbox or the captured output").
	for _, name := range vm.GlobalObject().Keys() {
		v := vm.Get(name)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		if s := v.Export(); s != nil {
			if str, ok := s.(string); ok && str != "" {
				return str, nil
			}
		}
	}
	return "", &animeerrors.DeobfuscationDetailError{Reason: "script produced no string output"}
}

// runtimePreludeJS sets up the stubbed minimal environment §4.B requires:
// a global object exposing String, RegExp, and arithmetic primitives, and
// explicitly nothing resembling a DOM or a timer. goja already provides
// String/RegExp/Math as ECMAScript builtins; this prelude only adds the
// bare globalThis alias a packer script's wrapper function expects to
// find itself running against.
const runtimePreludeJS = `
var globalThis = this;
`
