// Package playlist is Component D: the HLS media playlist parser. It turns
// a playlist body into an ordered list of segment references, resolving
// relative URIs and tracking the active #EXT-X-KEY across segments.
package playlist

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
)

// KeyMethod enumerates the #EXT-X-KEY METHOD values the engine understands.
type KeyMethod string

const (
	KeyMethodNone    KeyMethod = "NONE"
	KeyMethodAES128  KeyMethod = "AES-128"
	KeyMethodSampleA KeyMethod = "SAMPLE-AES" // recognized, not supported
)

// Key describes the decryption parameters active for a run of segments.
type Key struct {
	Method KeyMethod
	URI    string // absolute, resolved against the playlist URL
	IV     []byte // on each parsed Segment, the declared IV or, when omitted, the default Parse derives from the sequence number
}

// ByteRange is an inclusive byte span within a segment's resource, from
// #EXT-X-BYTERANGE.
type ByteRange struct {
	Length int64
	Offset int64
}

// Segment is one media segment entry in a parsed playlist.
type Segment struct {
	URL       string // absolute
	Duration  float64
	Sequence  int
	Key       *Key
	ByteRange *ByteRange
}

// Playlist is the parsed form of an HLS media playlist.
type Playlist struct {
	TargetDuration float64
	MediaSequence  int
	Segments       []Segment
	Live           bool // true when #EXT-X-ENDLIST is absent
}

// TotalDuration sums each segment's #EXTINF duration.
func (p Playlist) TotalDuration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// Parse parses a media playlist body. playlistURL is used to resolve
// relative segment and key URIs. Per SPEC_FULL.md §4.D, a playlist lacking
// #EXT-X-ENDLIST is rejected as unsupported: the engine downloads completed
// episodes, not live streams.
func Parse(body, playlistURL string) (Playlist, error) {
	if strings.TrimSpace(body) == "" {
		return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: "empty playlist body"}
	}
	if !strings.Contains(body, "#EXTM3U") {
		return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: "missing #EXTM3U header"}
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pl Playlist
	var currentKey *Key
	var pendingDuration float64
	var pendingByteRange *ByteRange
	var lastByteRangeEnd int64
	seq := 0
	haveSeq := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil {
				return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXT-X-TARGETDURATION: " + err.Error()}
			}
			pl.TargetDuration = v

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			if err != nil {
				return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXT-X-MEDIA-SEQUENCE: " + err.Error()}
			}
			pl.MediaSequence = v
			seq = v
			haveSeq = true

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			k, err := parseKey(strings.TrimPrefix(line, "#EXT-X-KEY:"), playlistURL)
			if err != nil {
				return Playlist{}, err
			}
			currentKey = k

		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			br, err := parseByteRange(strings.TrimPrefix(line, "#EXT-X-BYTERANGE:"), lastByteRangeEnd)
			if err != nil {
				return Playlist{}, err
			}
			pendingByteRange = br

		case strings.HasPrefix(line, "#EXTINF:"):
			v, err := parseExtInf(strings.TrimPrefix(line, "#EXTINF:"))
			if err != nil {
				return Playlist{}, err
			}
			pendingDuration = v

		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			// handled after the loop via scanner exhaustion; presence alone
			// is recorded below by scanning the raw body.

		case strings.HasPrefix(line, "#"):
			// unrecognized tag, ignored per spec silence on forward-compat

		default:
			segURL := resolveURL(playlistURL, line)
			seg := Segment{
				URL:       segURL,
				Duration:  pendingDuration,
				Sequence:  seq,
				Key:       resolvedKeyFor(currentKey, seq),
				ByteRange: pendingByteRange,
			}
			if pendingByteRange != nil {
				lastByteRangeEnd = pendingByteRange.Offset + pendingByteRange.Length
			}
			pl.Segments = append(pl.Segments, seg)
			if !haveSeq {
				pl.MediaSequence = seq
				haveSeq = true
			}
			seq++
			pendingDuration = 0
			pendingByteRange = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: err.Error()}
	}

	pl.Live = !strings.Contains(body, "#EXT-X-ENDLIST")
	if pl.Live {
		return Playlist{}, &animeerrors.UnsupportedFeatureDetailError{Feature: "live playlist (#EXT-X-ENDLIST missing)"}
	}
	if len(pl.Segments) == 0 {
		return Playlist{}, &animeerrors.ParseDetailError{Source: "playlist", Reason: "no segments"}
	}
	return pl, nil
}

// resolvedKeyFor returns a copy of k with a default IV installed when the
// playlist omitted one: the big-endian encoding of the segment's sequence
// number, left-padded to 16 bytes, per §4.D and RFC 8216 §5.2.
func resolvedKeyFor(k *Key, seq int) *Key {
	if k == nil || k.Method != KeyMethodAES128 {
		return k
	}
	out := *k
	if len(out.IV) == 0 {
		iv := make([]byte, 16)
		binary.BigEndian.PutUint64(iv[8:], uint64(seq))
		out.IV = iv
	}
	return &out
}

func parseExtInf(attrs string) (float64, error) {
	field, _, _ := strings.Cut(attrs, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXTINF duration: " + err.Error()}
	}
	return v, nil
}

func parseByteRange(attrs string, prevEnd int64) (*ByteRange, error) {
	attrs = strings.TrimSpace(attrs)
	length, rest, hasOffset := strings.Cut(attrs, "@")
	n, err := strconv.ParseInt(strings.TrimSpace(length), 10, 64)
	if err != nil {
		return nil, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXT-X-BYTERANGE length: " + err.Error()}
	}
	offset := prevEnd
	if hasOffset {
		o, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			return nil, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXT-X-BYTERANGE offset: " + err.Error()}
		}
		offset = o
	}
	return &ByteRange{Length: n, Offset: offset}, nil
}

func parseKey(attrs, playlistURL string) (*Key, error) {
	m := parseAttrs(attrs)
	method := KeyMethod(strings.ToUpper(m["METHOD"]))
	if method == "" || method == KeyMethodNone {
		return nil, nil
	}
	if method != KeyMethodAES128 {
		return nil, &animeerrors.UnsupportedFeatureDetailError{Feature: "encryption method " + string(method)}
	}

	key := &Key{Method: method}
	if uri, ok := m["URI"]; ok {
		key.URI = resolveURL(playlistURL, uri)
	} else {
		return nil, &animeerrors.ParseDetailError{Source: "playlist", Reason: "#EXT-X-KEY missing URI"}
	}
	if ivHex, ok := m["IV"]; ok {
		ivHex = strings.TrimPrefix(strings.TrimPrefix(ivHex, "0x"), "0X")
		iv, err := hex.DecodeString(ivHex)
		if err != nil {
			return nil, &animeerrors.ParseDetailError{Source: "playlist", Reason: "invalid #EXT-X-KEY IV: " + err.Error()}
		}
		key.IV = iv
	}
	return key, nil
}

// parseAttrs parses a comma-separated ATTR=VALUE or ATTR="VALUE" list, as
// used by #EXT-X-KEY and #EXT-X-STREAM-INF.
func parseAttrs(raw string) map[string]string {
	out := map[string]string{}
	rest := raw
	for len(rest) > 0 {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]
		if len(rest) == 0 {
			break
		}
		var value string
		if rest[0] == '"' {
			rest = rest[1:]
			end := strings.IndexByte(rest, '"')
			if end < 0 {
				value = rest
				rest = ""
			} else {
				value = rest[:end]
				rest = rest[end+1:]
			}
		} else {
			comma := strings.IndexByte(rest, ',')
			if comma < 0 {
				value = rest
				rest = ""
			} else {
				value = rest[:comma]
				rest = rest[comma+1:]
			}
		}
		out[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
		if len(rest) > 0 && rest[0] == ',' {
			rest = rest[1:]
		}
		rest = strings.TrimLeft(rest, " ")
	}
	return out
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
