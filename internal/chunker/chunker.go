// Package chunker 将长文本切分为带重叠的定长片段。
package chunker

import (
	"fmt"
	"strconv"

	"ask-pdf-go/internal/model"
)

// 自然断点按优先级排列：段落、换行、句末、词间空白。
var boundaryLevels = []struct {
	seps [][]rune
	// before 为 true 时，断点也可以落在分隔符之前（只对空白类分隔符有意义）。
	before bool
}{
	{seps: runesOf("\n\n"), before: true},
	{seps: runesOf("\n"), before: true},
	{seps: runesOf(". ", "! ", "? ", "。", "！", "？")},
	{seps: runesOf(" ", "\t"), before: true},
}

func runesOf(seps ...string) [][]rune {
	out := make([][]rune, len(seps))
	for i, sep := range seps {
		out[i] = []rune(sep)
	}
	return out
}

// Splitter 按固定的 chunkSize / chunkOverlap 切分文本。
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New 创建一个 Splitter，参数非法时返回 ErrInvalidConfig。
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size 必须大于 0, 实际为 %d", model.ErrInvalidConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap 必须满足 0 <= overlap < chunk_size, 实际为 %d/%d",
			model.ErrInvalidConfig, chunkOverlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// ChunkSize 返回窗口大小。
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap 返回相邻片段的重叠字符数。
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split 是 New(chunkSize, chunkOverlap).Split(text) 的简写。
func Split(text string, chunkSize, chunkOverlap int) ([]model.TextChunk, error) {
	s, err := New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text)
}

// Split 贪心地在文本上滑动窗口。每个片段都是原文的连续子串，长度不超过 chunkSize，
// 相邻片段恰好重叠 chunkOverlap 个字符。片段 ID 为其在文档中的序号。
func (s *Splitter) Split(text string) ([]model.TextChunk, error) {
	runes := []rune(text)
	n := len(runes)
	chunks := make([]model.TextChunk, 0, estimateChunks(n, s.chunkSize, s.chunkOverlap))
	if n == 0 {
		return chunks, nil
	}

	start := 0
	for {
		end := start + s.chunkSize
		if end >= n {
			chunks = append(chunks, newChunk(runes, len(chunks), start, n))
			break
		}
		// 断点必须越过 start+overlap，保证下一窗口的起点向前推进
		end = breakPoint(runes, start+s.chunkOverlap+1, end)
		chunks = append(chunks, newChunk(runes, len(chunks), start, end))
		start = end - s.chunkOverlap
	}
	return chunks, nil
}

func newChunk(runes []rune, ordinal, start, end int) model.TextChunk {
	return model.TextChunk{
		ID:           strconv.Itoa(ordinal),
		Content:      string(runes[start:end]),
		SourceOffset: &model.Range{Start: start, End: end},
	}
}

// breakPoint 在 [lo, hi] 内寻找优先级最高、位置最靠后的自然断点，找不到时在 hi 处硬切。
func breakPoint(runes []rune, lo, hi int) int {
	for _, level := range boundaryLevels {
		for p := hi; p >= lo; p-- {
			for _, sep := range level.seps {
				if endsWith(runes, p, sep) || (level.before && startsWith(runes, p, sep)) {
					return p
				}
			}
		}
	}
	return hi
}

func endsWith(runes []rune, p int, sep []rune) bool {
	if p-len(sep) < 0 {
		return false
	}
	return equalRunes(runes[p-len(sep):p], sep)
}

func startsWith(runes []rune, p int, sep []rune) bool {
	if p+len(sep) > len(runes) {
		return false
	}
	return equalRunes(runes[p:p+len(sep)], sep)
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func estimateChunks(n, size, overlap int) int {
	if n <= size {
		return 1
	}
	return (n-overlap)/(size-overlap) + 1
}
