package chunker

import "strings"

// Options control how a document's text is windowed into segments.
type Options struct {
	ChunkSize    int     // target segment length in characters
	ChunkOverlap float64 // < 1: fraction of ChunkSize, >= 1: absolute characters
	MinChunkSize int     // trailing segments shorter than this are dropped
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 0.2,
	}
}

// OverlapChars resolves the overlap setting to a character count.
func (o Options) OverlapChars() int {
	if o.ChunkOverlap >= 1 {
		return int(o.ChunkOverlap)
	}
	if o.ChunkOverlap <= 0 {
		return 0
	}
	return int(float64(o.ChunkSize) * o.ChunkOverlap)
}

// Segment is a bounded slice of a document's text. Start and End are rune
// offsets into the source text, so consecutive segments share byte-identical
// overlap regions.
type Segment struct {
	Text  string
	Index int
	Start int
	End   int
}

// Chunk walks text with a sliding window of ChunkSize and a stride of
// ChunkSize minus the overlap. It is deterministic and pure: the same input
// always yields the same segments. A document shorter than ChunkSize yields
// exactly one segment; empty or whitespace-only text yields none (callers
// treat that as a warning, not an error).
func Chunk(text string, opts Options) []Segment {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}

	runes := []rune(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	stride := opts.ChunkSize - opts.OverlapChars()
	if stride <= 0 {
		stride = opts.ChunkSize
	}

	var segments []Segment
	idx := 0
	for start := 0; start < len(runes); start += stride {
		end := start + opts.ChunkSize
		last := false
		if end >= len(runes) {
			end = len(runes)
			last = true
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) == "" {
			if last {
				break
			}
			continue
		}
		// The final window may fall short of ChunkSize; drop it only when it
		// carries less than MinChunkSize of content.
		if last && end-start < opts.MinChunkSize {
			break
		}

		segments = append(segments, Segment{
			Text:  content,
			Index: idx,
			Start: start,
			End:   end,
		})
		idx++

		if last {
			break
		}
	}

	return segments
}
