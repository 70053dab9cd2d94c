// Package animeerrors defines the engine's error taxonomy: one sentinel per
// kind, paired with a detail type that carries rich diagnostics while
// remaining compatible with errors.Is against the sentinel.
package animeerrors

import (
	"errors"
	"strconv"
)

var (
	// ErrNetwork covers transport, DNS, TLS, timeout, and non-2xx responses
	// that exhausted the retry budget.
	ErrNetwork = errors.New("network error")

	// ErrParse covers malformed HTML, JSON, or playlist bodies.
	ErrParse = errors.New("parse error")

	// ErrDeobfuscation covers JS evaluator timeout or a missing media URL.
	ErrDeobfuscation = errors.New("deobfuscation error")

	// ErrUnsupportedFeature covers live playlists and unsupported encryption
	// methods.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrDecryption covers key fetch failure or padding/length violations.
	ErrDecryption = errors.New("decryption error")

	// ErrAssembly covers a non-zero muxer exit or an IO failure writing the
	// final file.
	ErrAssembly = errors.New("assembly error")

	// ErrMissingDependency covers the muxer binary not being found.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrCancelled covers a user-initiated abort.
	ErrCancelled = errors.New("cancelled")

	// ErrEpisodeNotFound covers a requested episode number absent from the
	// catalog.
	ErrEpisodeNotFound = errors.New("episode not found")
)

// NetworkDetailError preserves ErrNetwork while exposing request context.
type NetworkDetailError struct {
	URL        string
	StatusCode int
	Attempts   int
	Cause      error
}

func (e *NetworkDetailError) Error() string {
	if e.StatusCode != 0 {
		return "network error: " + e.URL + ": status " + strconv.Itoa(e.StatusCode)
	}
	if e.Cause != nil {
		return "network error: " + e.URL + ": " + e.Cause.Error()
	}
	return "network error: " + e.URL
}

func (e *NetworkDetailError) Unwrap() error { return e.Cause }

func (e *NetworkDetailError) Is(target error) bool { return target == ErrNetwork }

// ParseDetailError preserves ErrParse while exposing the offending input.
type ParseDetailError struct {
	Source string // "html", "json", "playlist"
	Reason string
}

func (e *ParseDetailError) Error() string {
	return "parse error (" + e.Source + "): " + e.Reason
}

func (e *ParseDetailError) Is(target error) bool { return target == ErrParse }

// DeobfuscationDetailError preserves ErrDeobfuscation with timing/URL context.
type DeobfuscationDetailError struct {
	TimedOut bool
	Reason   string
}

func (e *DeobfuscationDetailError) Error() string {
	if e.TimedOut {
		return "deobfuscation error: evaluator timed out"
	}
	return "deobfuscation error: " + e.Reason
}

func (e *DeobfuscationDetailError) Is(target error) bool { return target == ErrDeobfuscation }

// UnsupportedFeatureDetailError preserves ErrUnsupportedFeature with the
// offending feature name.
type UnsupportedFeatureDetailError struct {
	Feature string
}

func (e *UnsupportedFeatureDetailError) Error() string {
	return "unsupported feature: " + e.Feature
}

func (e *UnsupportedFeatureDetailError) Is(target error) bool {
	return target == ErrUnsupportedFeature
}

// DecryptionDetailError preserves ErrDecryption with segment context.
type DecryptionDetailError struct {
	SegmentIndex int
	Reason       string
}

func (e *DecryptionDetailError) Error() string {
	return "decryption error (segment " + strconv.Itoa(e.SegmentIndex) + "): " + e.Reason
}

func (e *DecryptionDetailError) Is(target error) bool { return target == ErrDecryption }

// AssemblyDetailError preserves ErrAssembly with the muxer's stderr tail.
type AssemblyDetailError struct {
	ExitCode   int
	StderrTail string
}

func (e *AssemblyDetailError) Error() string {
	return "assembly error: exit=" + strconv.Itoa(e.ExitCode) + ": " + e.StderrTail
}

func (e *AssemblyDetailError) Is(target error) bool { return target == ErrAssembly }

// MissingDependencyDetailError preserves ErrMissingDependency with the
// dependency name.
type MissingDependencyDetailError struct {
	Name string
}

func (e *MissingDependencyDetailError) Error() string {
	return "missing dependency: " + e.Name
}

func (e *MissingDependencyDetailError) Is(target error) bool {
	return target == ErrMissingDependency
}

// EpisodeNotFoundDetailError preserves ErrEpisodeNotFound with the requested
// number.
type EpisodeNotFoundDetailError struct {
	Episode int
}

func (e *EpisodeNotFoundDetailError) Error() string {
	return "episode not found: " + strconv.Itoa(e.Episode)
}

func (e *EpisodeNotFoundDetailError) Is(target error) bool {
	return target == ErrEpisodeNotFound
}

// Kind classifies err into one of the taxonomy labels from §7. It returns
// "" for a nil err and "UnknownError" when a non-nil err matches no known
// sentinel. Used to build the
// "failed: <kind>: <message>" status strings the orchestrator emits.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetwork):
		return "NetworkError"
	case errors.Is(err, ErrParse):
		return "ParseError"
	case errors.Is(err, ErrDeobfuscation):
		return "DeobfuscationError"
	case errors.Is(err, ErrUnsupportedFeature):
		return "UnsupportedFeature"
	case errors.Is(err, ErrDecryption):
		return "DecryptionError"
	case errors.Is(err, ErrAssembly):
		return "AssemblyError"
	case errors.Is(err, ErrMissingDependency):
		return "MissingDependency"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrEpisodeNotFound):
		return "EpisodeNotFound"
	default:
		return "UnknownError"
	}
}

// StatusMessage formats the "failed: <kind>: <short message>" string §7
// requires at the event boundary.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	return "failed: " + Kind(err) + ": " + err.Error()
}
