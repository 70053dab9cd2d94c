// Package scraper is Component C: extracts selectable source candidates
// from an episode's play page, picks one per preference rules, then
// recovers that candidate's HLS playlist URL via internal/jsvm.
package scraper

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
	"github.com/justchokingaround/animepahe-dl/internal/jsvm"
)

// Candidate is one user-selectable source row decoded from the play page.
type Candidate struct {
	Src          string
	Audio        string
	Resolution   string
	AV1          bool
	ProviderHint string
}

// Preferences narrows candidate selection per SPEC_FULL.md §4.C steps 4-6.
type Preferences struct {
	Audio        string // empty means no preference
	Resolution   string // empty means no preference
	PrimaryHost  string // provider_hint token preferred in the final tie-break
}

// ResolvedSource is the outcome of resolving one episode to a playable
// HLS URL.
type ResolvedSource struct {
	Candidate   Candidate
	PlaylistURL string
}

// HTMLFetcher fetches a URL's HTML body, typically (*hostclient.Client).GetHTML.
type HTMLFetcher func(ctx context.Context, url string) ([]byte, error)

// ParseCandidates decodes each source row in the play page body into a Candidate.
// Rows are `<button>` or `<option>` elements carrying data-src/data-audio/
// data-resolution/data-av1 attributes, per §6.
func ParseCandidates(pageHTML []byte) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(pageHTML)))
	if err != nil {
		return nil, &animeerrors.ParseDetailError{Source: "html", Reason: err.Error()}
	}

	var candidates []Candidate
	doc.Find("button[data-src], option[data-src]").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("data-src")
		if !ok || src == "" {
			return
		}
		audio, _ := sel.Attr("data-audio")
		resolution, _ := sel.Attr("data-resolution")
		av1Attr, _ := sel.Attr("data-av1")
		providerHint := strings.TrimSpace(sel.Text())

		candidates = append(candidates, Candidate{
			Src:          src,
			Audio:        strings.TrimSpace(audio),
			Resolution:   strings.TrimSpace(resolution),
			AV1:          isTruthyAttr(av1Attr),
			ProviderHint: providerHint,
		})
	})

	if len(candidates) == 0 {
		return nil, &animeerrors.ParseDetailError{Source: "html", Reason: "no source candidates found on play page"}
	}
	return candidates, nil
}

func isTruthyAttr(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// SelectCandidate applies the filter chain from §4.C steps 3-6.
func SelectCandidate(candidates []Candidate, prefs Preferences) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, &animeerrors.ParseDetailError{Source: "html", Reason: "no candidates to select from"}
	}

	pool := candidates

	// Step 3: drop AV1 unless everything is AV1.
	if filtered := filterNonAV1(pool); len(filtered) > 0 {
		pool = filtered
	}

	// Step 4: audio preference.
	if prefs.Audio != "" {
		if filtered := filterByAudio(pool, prefs.Audio); len(filtered) > 0 {
			pool = filtered
		}
	}

	// Step 5: resolution preference.
	if prefs.Resolution != "" {
		if filtered := filterByResolution(pool, prefs.Resolution); len(filtered) > 0 {
			pool = filtered
		}
	}

	// Step 6: prefer the last candidate whose provider_hint contains the
	// primary host token; otherwise the last surviving candidate.
	if prefs.PrimaryHost != "" {
		for i := len(pool) - 1; i >= 0; i-- {
			if strings.Contains(strings.ToLower(pool[i].ProviderHint), strings.ToLower(prefs.PrimaryHost)) {
				return pool[i], nil
			}
		}
	}
	return pool[len(pool)-1], nil
}

func filterNonAV1(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if !c.AV1 {
			out = append(out, c)
		}
	}
	return out
}

func filterByAudio(candidates []Candidate, audio string) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if strings.EqualFold(c.Audio, audio) {
			out = append(out, c)
		}
	}
	return out
}

func filterByResolution(candidates []Candidate, resolution string) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if strings.EqualFold(c.Resolution, resolution) {
			out = append(out, c)
		}
	}
	return out
}

// dispatcherScriptRegexp locates the packer-wrapped dispatcher script block
// on a candidate's landing page.
var dispatcherScriptRegexp = regexp.MustCompile(`eval\(function\(p,a,c,k,e,d\)\{[\s\S]*?\}\([\s\S]*?\)\)`)

// ResolvePlaylistURL fetches candidate.Src's landing page, locates its
// obfuscated dispatcher script, and evaluates it to recover the HLS
// playlist URL.
func ResolvePlaylistURL(ctx context.Context, fetch HTMLFetcher, candidate Candidate) (ResolvedSource, error) {
	body, err := fetch(ctx, candidate.Src)
	if err != nil {
		return ResolvedSource{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ResolvedSource{}, &animeerrors.ParseDetailError{Source: "html", Reason: err.Error()}
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := dispatcherScriptRegexp.FindString(sel.Text()); m != "" {
			script = m
			return false
		}
		return true
	})
	if script == "" {
		return ResolvedSource{}, &animeerrors.ParseDetailError{Source: "html", Reason: "landing page has no dispatcher script"}
	}

	url, err := jsvm.ExtractPlaylistURL(ctx, script)
	if err != nil {
		return ResolvedSource{}, err
	}
	return ResolvedSource{Candidate: candidate, PlaylistURL: url}, nil
}
