package playlist

import (
	"testing"
)

const basicPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-KEY:METHOD=AES-128,URI="https://host/key",IV=0x00000000000000000000000000000001
#EXTINF:6.000,
segment0.ts
#EXTINF:6.000,
segment1.ts
#EXT-X-ENDLIST
`

func TestParseBasicPlaylist(t *testing.T) {
	pl, err := Parse(basicPlaylist, "https://host/media.m3u8")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if pl.Live {
		t.Fatal("Live = true, want false (ENDLIST present)")
	}
	if len(pl.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(pl.Segments))
	}
	if pl.Segments[0].URL != "https://host/segment0.ts" {
		t.Fatalf("Segments[0].URL = %q", pl.Segments[0].URL)
	}
	if pl.Segments[0].Key == nil || pl.Segments[0].Key.Method != KeyMethodAES128 {
		t.Fatal("expected AES-128 key on segment 0")
	}
	if len(pl.Segments[0].Key.IV) != 16 {
		t.Fatalf("IV length = %d, want 16", len(pl.Segments[0].Key.IV))
	}
}

func TestParseRejectsLivePlaylist(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:6.0,\nseg0.ts\n"
	_, err := Parse(body, "https://host/media.m3u8")
	if err == nil {
		t.Fatal("expected error for playlist missing #EXT-X-ENDLIST")
	}
}

func TestParseDefaultsIVToSequenceNumberWhenOmitted(t *testing.T) {
	body := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:5
#EXT-X-KEY:METHOD=AES-128,URI="https://host/key"
#EXTINF:6.0,
seg5.ts
#EXTINF:6.0,
seg6.ts
#EXT-X-ENDLIST
`
	pl, err := Parse(body, "https://host/media.m3u8")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pl.Segments[0].Key.IV) != 16 {
		t.Fatal("expected a derived 16-byte IV")
	}
	if pl.Segments[0].Key.IV[15] != 5 {
		t.Fatalf("derived IV low byte = %d, want sequence 5", pl.Segments[0].Key.IV[15])
	}
	if pl.Segments[1].Key.IV[15] != 6 {
		t.Fatalf("derived IV low byte = %d, want sequence 6", pl.Segments[1].Key.IV[15])
	}
}

func TestParseByteRangeAccumulatesOffset(t *testing.T) {
	body := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-BYTERANGE:1000@0
#EXTINF:6.0,
seg.ts
#EXT-X-BYTERANGE:1000
#EXTINF:6.0,
seg.ts
#EXT-X-ENDLIST
`
	pl, err := Parse(body, "https://host/media.m3u8")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if pl.Segments[0].ByteRange.Offset != 0 || pl.Segments[0].ByteRange.Length != 1000 {
		t.Fatalf("Segments[0].ByteRange = %+v", pl.Segments[0].ByteRange)
	}
	if pl.Segments[1].ByteRange.Offset != 1000 || pl.Segments[1].ByteRange.Length != 1000 {
		t.Fatalf("Segments[1].ByteRange = %+v", pl.Segments[1].ByteRange)
	}
}

func TestParseRejectsUnsupportedEncryption(t *testing.T) {
	body := `#EXTM3U
#EXT-X-KEY:METHOD=SAMPLE-AES,URI="https://host/key"
#EXTINF:6.0,
seg.ts
#EXT-X-ENDLIST
`
	_, err := Parse(body, "https://host/media.m3u8")
	if err == nil {
		t.Fatal("expected unsupported-feature error for SAMPLE-AES")
	}
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, err := Parse("", "https://host/media.m3u8")
	if err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestTotalDuration(t *testing.T) {
	pl, err := Parse(basicPlaylist, "https://host/media.m3u8")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if pl.TotalDuration() != 12.0 {
		t.Fatalf("TotalDuration() = %v, want 12.0", pl.TotalDuration())
	}
}
