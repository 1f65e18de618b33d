package chunker

import (
	"strings"
	"testing"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := New(Options{MaxChunkChars: 100})
	chunks := c.Chunk("短文本。")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "短文本。" || chunks[0].Index != 0 || chunks[0].Context != "" {
		t.Fatalf("unexpected chunk: %+v", chunks[0])
	}
}

func TestChunkEmptyText(t *testing.T) {
	if got := New(Options{}).Chunk(""); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
}

func TestChunkSplitsAtChapterBoundaries(t *testing.T) {
	para := strings.Repeat("他沿着河岸走了很久。", 20) // 200 runes
	text := "第一章 出发\n\n" + para + "\n第二章 抵达\n\n" + para

	c := New(Options{MaxChunkChars: 250, MinChunkChars: 50, MinBoundarySpacing: 10, ContextTailChars: 30})
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	var secondChapter *Chunk
	for i := range chunks {
		if strings.HasPrefix(strings.TrimSpace(chunks[i].Text), "第二章") {
			secondChapter = &chunks[i]
		}
	}
	if secondChapter == nil {
		t.Fatalf("expected a chunk starting at the second chapter header; got %d chunks", len(chunks))
	}
}

func TestChunkReassemblesToOriginal(t *testing.T) {
	sentence := "风从海上吹来，带着盐的味道。"
	text := "第一章 启程\n\n" + strings.Repeat(sentence, 40)
	c := New(Options{MaxChunkChars: 300, MinChunkChars: 40, MinBoundarySpacing: 20})
	chunks := c.Chunk(text)

	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d", i, chunk.Index)
		}
		rebuilt.WriteString(chunk.Text)
	}
	if rebuilt.String() != text {
		t.Fatal("concatenated chunks should reproduce the source text")
	}
}

func TestChunkRespectsMaxSize(t *testing.T) {
	sentence := "夜色渐深，灯火次第熄灭。"
	text := strings.Repeat(sentence, 100)
	max := 200
	c := New(Options{MaxChunkChars: max, MinChunkChars: 30, MinBoundarySpacing: 12})
	for _, chunk := range c.Chunk(text) {
		if size := chunk.End - chunk.Start; size > max+len([]rune(sentence)) {
			t.Fatalf("chunk size %d far exceeds budget %d", size, max)
		}
	}
}

func TestChunkOversizedSegmentEmittedWhole(t *testing.T) {
	// One giant run with no internal boundaries must not be sub-split.
	giant := strings.Repeat("字", 800)
	text := "第一章\n\n" + giant + "。\n\n尾声。" + strings.Repeat("结束了。", 80)
	c := New(Options{MaxChunkChars: 300, MinChunkChars: 20, MinBoundarySpacing: 10})
	chunks := c.Chunk(text)

	found := false
	for _, chunk := range chunks {
		if strings.Contains(chunk.Text, giant) {
			found = true
		}
	}
	if !found {
		t.Fatal("oversized segment should be carried whole inside a single chunk")
	}
}

func TestChunkContextTail(t *testing.T) {
	sentence := "她推开门，走进了院子。"
	text := strings.Repeat(sentence, 60)
	c := New(Options{MaxChunkChars: 240, MinChunkChars: 30, MinBoundarySpacing: 11, ContextTailChars: 40})
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		ctx := []rune(chunks[i].Context)
		if len(ctx) == 0 || len(ctx) > 40 {
			t.Fatalf("chunk %d context length %d outside (0,40]", i, len(ctx))
		}
		if !strings.HasSuffix(chunks[i-1].Text, chunks[i].Context) {
			t.Fatalf("chunk %d context is not a tail of its predecessor", i)
		}
	}
}

func TestChunkMergesSmallTrailing(t *testing.T) {
	sentence := "短句。"
	text := strings.Repeat("长长的句子在这里不断延续着向前推进。", 30) + sentence
	c := New(Options{MaxChunkChars: 200, MinChunkChars: 60, MinBoundarySpacing: 5})
	chunks := c.Chunk(text)
	last := chunks[len(chunks)-1]
	if size := last.End - last.Start; size < 60 && len(chunks) > 1 {
		t.Fatalf("trailing chunk of %d runes should have been merged", size)
	}
}

func TestChunkTokenEstimates(t *testing.T) {
	c := New(Options{})
	chunks := c.Chunk("一二三四五六。")
	if chunks[0].EstimatedTokens <= 0 {
		t.Fatal("expected a positive token estimate")
	}
}
