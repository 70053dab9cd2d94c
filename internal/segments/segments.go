// Package segments is Component E: the bounded worker pool that downloads
// and decrypts an episode's segments, publishing progress and handing each
// segment's plaintext to the assembler in index order.
package segments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
	"github.com/justchokingaround/animepahe-dl/internal/decrypt"
	"github.com/justchokingaround/animepahe-dl/internal/hostclient"
	"github.com/justchokingaround/animepahe-dl/internal/playlist"
)

const (
	// MinWorkers and MaxWorkers bound the configurable pool width.
	MinWorkers = 2
	MaxWorkers = 64
	// DefaultWorkers is used when the caller does not specify a width.
	DefaultWorkers = 10
	// DefaultProgressInterval is how often Progress events are published.
	DefaultProgressInterval = 250 * time.Millisecond
	// maxSegmentRetries bounds per-segment transient retry attempts.
	maxSegmentRetries = 5
	speedWindowSize   = 32
)

// ClampWorkers normalizes a requested worker count into [MinWorkers, MaxWorkers].
func ClampWorkers(w int) int {
	if w < MinWorkers {
		return MinWorkers
	}
	if w > MaxWorkers {
		return MaxWorkers
	}
	return w
}

// Progress is one sample of download progress, emitted at ProgressInterval.
type Progress struct {
	Done          int64
	Total         int64
	UnitIsBytes   bool
	SpeedBPS      float64
	ElapsedSecond float64
}

// Options configures a Run invocation.
type Options struct {
	WorkDir          string // directory .part files are written under
	Workers          int
	ProgressInterval time.Duration
	OnProgress       func(Progress)
}

func (o Options) normalized() Options {
	o.Workers = ClampWorkers(o.Workers)
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	return o
}

// Result is the ordered set of on-disk segment paths Run produced, ready
// for internal/assembler to concatenate.
type Result struct {
	PartPaths []string // PartPaths[i] corresponds to playlist.Segments[i]
}

type fetcher interface {
	GetBytes(ctx context.Context, rawURL string, rng *hostclient.ByteRange) ([]byte, error)
}

// lengthProber is satisfied by *hostclient.Client. When the fetcher passed
// to Run also implements it, downloadOne uses it to decide whether an
// existing .part file can be kept rather than re-fetched, per the
// length-only resume decision in SPEC_FULL.md §4.H.
type lengthProber interface {
	HeadLength(ctx context.Context, rawURL string) (int64, error)
}

// Run downloads and decrypts every segment in pl using client for transport
// and cache for key lookups, writing each segment's plaintext to
// "<WorkDir>/<index>.part" and returning once every segment is on disk (or
// the first non-retryable error is hit, or ctx is cancelled).
func Run(ctx context.Context, client fetcher, cache *decrypt.KeyCache, pl playlist.Playlist, opts Options) (Result, error) {
	opts = opts.normalized()
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return Result{}, &animeerrors.AssemblyDetailError{StderrTail: err.Error()}
	}

	n := len(pl.Segments)
	paths := make([]string, n)

	var doneBytes atomic.Int64
	var doneSegments atomic.Int64
	// Progress is in bytes only when every segment carries a byte range, so
	// the byte total is known up front; otherwise it counts segments.
	totalBytesKnown := n > 0
	var totalBytes int64
	for _, seg := range pl.Segments {
		if seg.ByteRange == nil {
			totalBytesKnown = false
			break
		}
		totalBytes += seg.ByteRange.Length
	}
	total := int64(n)
	if totalBytesKnown {
		total = totalBytes
	}

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	start := time.Now()
	var speedWindow speedTracker
	if opts.OnProgress != nil {
		go func() {
			ticker := time.NewTicker(opts.ProgressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-progressCtx.Done():
					return
				case <-ticker.C:
					done := doneBytes.Load()
					if !totalBytesKnown {
						done = doneSegments.Load()
					}
					opts.OnProgress(Progress{
						Done:          done,
						Total:         total,
						UnitIsBytes:   totalBytesKnown,
						SpeedBPS:      speedWindow.bps(),
						ElapsedSecond: time.Since(start).Seconds(),
					})
				}
			}
		}()
	}

	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	errOnce := sync.Once{}
	var firstErr error
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, seg := range pl.Segments {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, seg playlist.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			path, n, err := downloadOne(runCtx, client, cache, opts.WorkDir, index, seg)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			paths[index] = path
			doneBytes.Add(int64(n))
			doneSegments.Add(1)
			speedWindow.record(time.Now(), int64(n))
		}(i, seg)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return Result{}, &animeerrors.NetworkDetailError{Cause: animeerrors.ErrCancelled}
	}
	if firstErr != nil {
		return Result{}, firstErr
	}

	return Result{PartPaths: paths}, nil
}

func downloadOne(ctx context.Context, client fetcher, cache *decrypt.KeyCache, workDir string, index int, seg playlist.Segment) (string, int, error) {
	path := filepath.Join(workDir, fmt.Sprintf("%d.part", index))
	if prober, ok := client.(lengthProber); ok {
		if existing, err := os.Stat(path); err == nil {
			if remoteLen, err := prober.HeadLength(ctx, seg.URL); err == nil && existing.Size() == remoteLen {
				return path, int(existing.Size()), nil
			}
		}
	}

	var rng *hostclient.ByteRange
	if seg.ByteRange != nil {
		rng = &hostclient.ByteRange{Offset: seg.ByteRange.Offset, Length: seg.ByteRange.Length}
	}

	var body []byte
	var err error
	for attempt := 0; attempt <= maxSegmentRetries; attempt++ {
		body, err = client.GetBytes(ctx, seg.URL, rng)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", 0, &animeerrors.NetworkDetailError{URL: seg.URL, Cause: animeerrors.ErrCancelled}
		}
		if attempt == maxSegmentRetries {
			return "", 0, fmt.Errorf("segment %d: %w", index, err)
		}
	}

	plaintext, err := decrypt.Segment(ctx, cache, seg, body)
	if err != nil {
		return "", 0, err
	}

	if err := os.WriteFile(path, plaintext, 0o644); err != nil {
		return "", 0, &animeerrors.AssemblyDetailError{StderrTail: err.Error()}
	}
	return path, len(plaintext), nil
}

// speedTracker keeps a fixed-size ring of recent (timestamp, bytes) samples
// to compute an instantaneous bytes-per-second estimate.
type speedTracker struct {
	mu      sync.Mutex
	samples [speedWindowSize]sample
	idx     int
	filled  int
}

type sample struct {
	at    time.Time
	bytes int64
}

func (s *speedTracker) record(at time.Time, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.idx] = sample{at: at, bytes: n}
	s.idx = (s.idx + 1) % speedWindowSize
	if s.filled < speedWindowSize {
		s.filled++
	}
}

func (s *speedTracker) bps() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled == 0 {
		return 0
	}
	var totalBytes int64
	var oldest, newest time.Time
	for i := 0; i < s.filled; i++ {
		sm := s.samples[i]
		totalBytes += sm.bytes
		if oldest.IsZero() || sm.at.Before(oldest) {
			oldest = sm.at
		}
		if sm.at.After(newest) {
			newest = sm.at
		}
	}
	elapsed := newest.Sub(oldest).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(totalBytes) / elapsed
}
