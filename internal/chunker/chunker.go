package chunker

import (
	"regexp"
	"sort"
	"unicode/utf8"

	"scriptforge/internal/textutil"
)

// Chunk is one bounded segment of the source text.
type Chunk struct {
	// Index is the 0-based sequential identifier, recomputed after merges.
	Index int
	// Text is the chunk body.
	Text string
	// Context carries up to the configured number of trailing characters of
	// the previous chunk.
	Context string
	// Start and End are rune offsets into the source text.
	Start int
	End   int
	// EstimatedTokens approximates the model token cost of Text.
	EstimatedTokens int
}

// Options tunes chunking behavior. Zero fields fall back to defaults.
type Options struct {
	MaxChunkChars      int
	MinChunkChars      int
	ContextTailChars   int
	MinBoundarySpacing int
}

const (
	defaultMaxChunkChars   = 4500
	defaultMinChunkChars   = 600
	defaultContextTail     = 500
	defaultBoundarySpacing = 80

	weightChapter   = 1.0
	weightParagraph = 0.6
	weightSentence  = 0.3
)

// Chunker splits text according to its options. Stateless per call.
type Chunker struct {
	opts Options
}

// New constructs a Chunker, applying defaults for unset options.
func New(opts Options) *Chunker {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = defaultMaxChunkChars
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = defaultMinChunkChars
	}
	if opts.ContextTailChars < 0 {
		opts.ContextTailChars = defaultContextTail
	}
	if opts.ContextTailChars == 0 {
		opts.ContextTailChars = defaultContextTail
	}
	if opts.MinBoundarySpacing <= 0 {
		opts.MinBoundarySpacing = defaultBoundarySpacing
	}
	return &Chunker{opts: opts}
}

var (
	chapterHeaderPattern = regexp.MustCompile(
		`(?m)^\s*(第\s*[零一二三四五六七八九十百千万0-9]+\s*[章回节卷幕集]|(?i:chapter|scene|act|part)\s+[0-9ivxlc]+|INT\.|EXT\.)`,
	)
	paragraphBreakPattern = regexp.MustCompile(`\n[ \t\r]*\n`)
)

type boundary struct {
	offset int // rune offset of the segment start the boundary introduces
	weight float64
}

// Chunk splits text into ordered chunks. Text at or under the maximum size is
// returned as a single chunk.
func (c *Chunker) Chunk(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.opts.MaxChunkChars {
		chunk := Chunk{Text: text, End: len(runes), EstimatedTokens: textutil.EstimateTokens(text)}
		return []Chunk{chunk}
	}

	boundaries := c.findBoundaries(text, runes)
	boundaries = mergeClose(boundaries, c.opts.MinBoundarySpacing)
	segments := splitAt(runes, boundaries)
	chunks := c.accumulate(segments)
	chunks = c.mergeSmall(chunks)
	c.attachContext(chunks, runes)
	return chunks
}

// findBoundaries locates candidate split points as rune offsets with a
// priority weight. The offset marks where a new segment would begin.
func (c *Chunker) findBoundaries(text string, runes []rune) []boundary {
	byteToRune := makeByteToRuneIndex(text)

	var found []boundary
	for _, loc := range chapterHeaderPattern.FindAllStringIndex(text, -1) {
		found = append(found, boundary{offset: byteToRune[loc[0]], weight: weightChapter})
	}
	for _, loc := range paragraphBreakPattern.FindAllStringIndex(text, -1) {
		found = append(found, boundary{offset: byteToRune[loc[1]], weight: weightParagraph})
	}
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '!', '?':
			if i+1 < len(runes) {
				found = append(found, boundary{offset: i + 1, weight: weightSentence})
			}
		case '.':
			// Only sentence-final periods followed by whitespace count.
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				found = append(found, boundary{offset: i + 2, weight: weightSentence})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].offset == found[j].offset {
			return found[i].weight > found[j].weight
		}
		return found[i].offset < found[j].offset
	})
	return found
}

// mergeClose drops boundaries closer than spacing to their predecessor,
// keeping the higher-weight boundary of each cluster.
func mergeClose(boundaries []boundary, spacing int) []boundary {
	if len(boundaries) == 0 {
		return nil
	}
	merged := make([]boundary, 0, len(boundaries))
	for _, b := range boundaries {
		if b.offset <= 0 {
			continue
		}
		if len(merged) == 0 {
			merged = append(merged, b)
			continue
		}
		last := &merged[len(merged)-1]
		if b.offset-last.offset < spacing {
			if b.weight > last.weight {
				*last = b
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

type segment struct {
	start int
	end   int
	// weight is the priority of the boundary that opens the segment.
	weight float64
}

func splitAt(runes []rune, boundaries []boundary) []segment {
	var segments []segment
	prev := 0
	prevWeight := 0.0
	for _, b := range boundaries {
		if b.offset <= prev || b.offset >= len(runes) {
			continue
		}
		segments = append(segments, segment{start: prev, end: b.offset, weight: prevWeight})
		prev = b.offset
		prevWeight = b.weight
	}
	if prev < len(runes) {
		segments = append(segments, segment{start: prev, end: len(runes), weight: prevWeight})
	}
	return segments
}

// accumulate packs segments into chunks, flushing when the budget would be
// exceeded and unconditionally at chapter boundaries so chapters never share
// a chunk. A single segment over the budget is still emitted whole.
func (c *Chunker) accumulate(segments []segment) []Chunk {
	var chunks []Chunk
	cur := segment{start: -1}

	flush := func() {
		if cur.start < 0 || cur.end <= cur.start {
			return
		}
		chunks = append(chunks, Chunk{Start: cur.start, End: cur.end})
		cur = segment{start: -1}
	}

	for _, seg := range segments {
		segLen := seg.end - seg.start
		if cur.start < 0 {
			cur = seg
			continue
		}
		if seg.weight >= weightChapter || (cur.end-cur.start)+segLen > c.opts.MaxChunkChars {
			flush()
			cur = seg
			continue
		}
		cur.end = seg.end
	}
	flush()
	return chunks
}

// mergeSmall folds undersized chunks into their predecessor.
func (c *Chunker) mergeSmall(chunks []Chunk) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	merged := make([]Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		size := chunk.End - chunk.Start
		if len(merged) > 0 && size < c.opts.MinChunkChars {
			merged[len(merged)-1].End = chunk.End
			continue
		}
		merged = append(merged, chunk)
	}
	return merged
}

// attachContext fills Text, Context, Index, and token estimates.
func (c *Chunker) attachContext(chunks []Chunk, runes []rune) {
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Text = string(runes[chunks[i].Start:chunks[i].End])
		chunks[i].EstimatedTokens = textutil.EstimateTokens(chunks[i].Text)
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		tailStart := prev.End - c.opts.ContextTailChars
		if tailStart < prev.Start {
			tailStart = prev.Start
		}
		chunks[i].Context = string(runes[tailStart:prev.End])
	}
}

// makeByteToRuneIndex maps every byte offset of text to its rune offset.
func makeByteToRuneIndex(text string) []int {
	index := make([]int, len(text)+1)
	runeIdx := 0
	for byteIdx, r := range text {
		for b := 0; b < utf8.RuneLen(r); b++ {
			index[byteIdx+b] = runeIdx
		}
		runeIdx++
	}
	index[len(text)] = runeIdx
	return index
}
