// Package orchestrator is Component I: the sequential per-episode pipeline
// that ties together the scraper, playlist parser, segment pool, assembler
// and state store, emitting status and progress events as it goes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
	"github.com/justchokingaround/animepahe-dl/internal/assembler"
	"github.com/justchokingaround/animepahe-dl/internal/decrypt"
	"github.com/justchokingaround/animepahe-dl/internal/hostclient"
	"github.com/justchokingaround/animepahe-dl/internal/playlist"
	"github.com/justchokingaround/animepahe-dl/internal/scraper"
	"github.com/justchokingaround/animepahe-dl/internal/segments"
	"github.com/justchokingaround/animepahe-dl/internal/statestore"
)

// EpisodeState is one step of the per-episode state machine. Transitions
// are one-way; Completed/Failed/Cancelled are terminal.
type EpisodeState string

const (
	StateQueued      EpisodeState = "Queued"
	StateResolving   EpisodeState = "Resolving"
	StateExtracting  EpisodeState = "Extracting"
	StateDownloading EpisodeState = "Downloading"
	StateAssembling  EpisodeState = "Assembling"
	StateCompleted   EpisodeState = "Completed"
	StateFailed      EpisodeState = "Failed"
	StateCancelled   EpisodeState = "Cancelled"
)

// StatusEvent is emitted on every state transition for one episode.
type StatusEvent struct {
	Episode int
	State   EpisodeState
	Message string
	Path    string
}

// ProgressEvent mirrors internal/segments.Progress, scoped to one episode.
type ProgressEvent struct {
	Episode        int
	Done           int64
	Total          int64
	Bytes          bool
	SpeedBPS       int64
	ElapsedSeconds int64
}

// Request describes one invocation of StartDownload.
type Request struct {
	AnimeName   string
	Slug        string
	Episodes    []int
	Audio       string
	Resolution  string
	DownloadDir string
	PrimaryHost string
	Workers     int
	// ResumeID, when set, is an existing statestore.DownloadRecord.ID to
	// bring to completion rather than minting a new record. Only valid
	// when Episodes names exactly the record's own episode; resume.go is
	// the only caller that sets it.
	ResumeID   string
	OnStatus   func(StatusEvent)
	OnProgress func(ProgressEvent)
}

// EpisodeCatalog resolves episode numbers to play-page URLs. Implemented by
// the caller against the host's release-catalog endpoint; kept as an
// interface so the orchestrator carries no direct host-API dependency.
type EpisodeCatalog interface {
	// Resolve returns the play-page URL for each requested episode number
	// found in the catalog. Numbers absent from the catalog are omitted
	// from the returned map; the orchestrator reports those as
	// EpisodeNotFound.
	Resolve(ctx context.Context, episodes []int) (map[int]string, error)
}

// Deps wires the components the orchestrator sequences.
type Deps struct {
	Catalog EpisodeCatalog
	Client  *hostclient.Client
	Muxer   assembler.Muxer
	Store   *statestore.Store
}

// StartDownload runs Request's episodes sequentially, at most one active
// at a time, per SPEC_FULL.md §4.I / §5.
func StartDownload(ctx context.Context, req Request, deps Deps) error {
	if deps.Muxer != nil && !deps.Muxer.Available() {
		return &animeerrors.MissingDependencyDetailError{Name: "ffmpeg"}
	}

	resolved, err := deps.Catalog.Resolve(ctx, req.Episodes)
	if err != nil {
		return err
	}

	var firstErr error
	for _, ep := range sortedUnique(req.Episodes) {
		if ctx.Err() != nil {
			emitStatus(req.OnStatus, ep, StateCancelled, "cancelled", "")
			continue
		}

		playURL, ok := resolved[ep]
		if !ok {
			notFound := &animeerrors.EpisodeNotFoundDetailError{Episode: ep}
			emitStatus(req.OnStatus, ep, StateFailed, animeerrors.StatusMessage(notFound), "")
			if firstErr == nil {
				firstErr = notFound
			}
			continue
		}

		if err := runEpisode(ctx, req, deps, ep, playURL); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// one episode's failure does not stop the remaining queue
		}
	}
	return firstErr
}

func runEpisode(ctx context.Context, req Request, deps Deps, episode int, playURL string) error {
	emitStatus(req.OnStatus, episode, StateQueued, "queued", "")

	recordID, err := deps.Store.Upsert(statestore.DownloadRecord{
		ID:         req.ResumeID,
		AnimeName:  req.AnimeName,
		Slug:       req.Slug,
		Episode:    episode,
		Status:     statestore.StatusInProgress,
		AudioType:  req.Audio,
		Resolution: req.Resolution,
	})
	if err != nil {
		return err
	}

	fail := func(cause error) error {
		status := statestore.StatusFailed
		state := StateFailed
		if ctx.Err() != nil {
			status = statestore.StatusCancelled
			state = StateCancelled
		}
		_, upsertErr := deps.Store.Upsert(statestore.DownloadRecord{
			ID:           recordID,
			AnimeName:    req.AnimeName,
			Slug:         req.Slug,
			Episode:      episode,
			Status:       status,
			ErrorMessage: cause.Error(),
			AudioType:    req.Audio,
			Resolution:   req.Resolution,
		})
		if upsertErr != nil {
			cause = errors.Join(cause, upsertErr)
		}
		emitStatus(req.OnStatus, episode, state, animeerrors.StatusMessage(cause), "")
		return cause
	}

	emitStatus(req.OnStatus, episode, StateResolving, "fetching link", "")
	page, err := deps.Client.GetHTML(ctx, playURL)
	if err != nil {
		return fail(err)
	}
	candidates, err := scraper.ParseCandidates(page)
	if err != nil {
		return fail(err)
	}
	chosen, err := scraper.SelectCandidate(candidates, scraper.Preferences{
		Audio:       req.Audio,
		Resolution:  req.Resolution,
		PrimaryHost: req.PrimaryHost,
	})
	if err != nil {
		return fail(err)
	}
	resolvedSource, err := scraper.ResolvePlaylistURL(ctx, deps.Client.GetHTML, chosen)
	if err != nil {
		return fail(err)
	}

	emitStatus(req.OnStatus, episode, StateExtracting, "extracting playlist", "")
	body, err := deps.Client.GetHTML(ctx, resolvedSource.PlaylistURL)
	if err != nil {
		return fail(err)
	}
	pl, err := playlist.Parse(string(body), resolvedSource.PlaylistURL)
	if err != nil {
		return fail(err)
	}

	emitStatus(req.OnStatus, episode, StateDownloading, "downloading", "")
	workDir := filepath.Join(req.DownloadDir, ".parts", strconv.Itoa(episode))
	cache := decrypt.NewKeyCache(func(ctx context.Context, uri string) ([]byte, error) {
		return deps.Client.GetBytes(ctx, uri, nil)
	})
	result, err := segments.Run(ctx, deps.Client, cache, pl, segments.Options{
		WorkDir: workDir,
		Workers: req.Workers,
		OnProgress: func(p segments.Progress) {
			if req.OnProgress != nil {
				req.OnProgress(ProgressEvent{
					Episode:        episode,
					Done:           p.Done,
					Total:          p.Total,
					Bytes:          p.UnitIsBytes,
					SpeedBPS:       int64(p.SpeedBPS),
					ElapsedSeconds: int64(p.ElapsedSecond),
				})
			}
		},
	})
	if err != nil {
		return fail(err)
	}

	emitStatus(req.OnStatus, episode, StateAssembling, "assembling", "")
	sanitizedName := sanitizeName(req.AnimeName)
	if sanitizedName == "" {
		sanitizedName = sanitizeName(req.Slug)
	}
	outputDir := filepath.Join(req.DownloadDir, sanitizedName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fail(&animeerrors.AssemblyDetailError{StderrTail: err.Error()})
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%s - %d.mp4", sanitizedName, episode))
	if err := deps.Muxer.Concat(ctx, result.PartPaths, outputPath, assembler.ConcatOptions{
		TotalDurationSeconds: pl.TotalDuration(),
	}); err != nil {
		return fail(err)
	}
	os.RemoveAll(workDir)

	if _, err := deps.Store.Upsert(statestore.DownloadRecord{
		ID:         recordID,
		AnimeName:  req.AnimeName,
		Slug:       req.Slug,
		Episode:    episode,
		Status:     statestore.StatusCompleted,
		FilePath:   outputPath,
		AudioType:  req.Audio,
		Resolution: req.Resolution,
	}); err != nil {
		return err
	}
	emitStatus(req.OnStatus, episode, StateCompleted, "done", outputPath)
	return nil
}

func emitStatus(onStatus func(StatusEvent), episode int, state EpisodeState, message, path string) {
	if onStatus == nil {
		return
	}
	onStatus(StatusEvent{Episode: episode, State: state, Message: message, Path: path})
}

// sanitizeName strips path separators and other filesystem-hostile
// characters from a display name so it is safe to use as a directory or
// file-name component, per §6's on-disk layout.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// sortedUnique insertion-sorts episodes and drops duplicates; the episode
// counts §5 expects are small enough that O(n^2) is not worth a sort import
// detour for a single call site.
func sortedUnique(episodes []int) []int {
	out := append([]int(nil), episodes...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	deduped := out[:0]
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			deduped = append(deduped, v)
		}
	}
	return deduped
}
