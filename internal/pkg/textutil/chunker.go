package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 默认分块参数（Unicode 字符数）。
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
)

var (
	hyphenBreakRe  = regexp.MustCompile(`(\w)-\n(\w)`)
	spaceRunRe     = regexp.MustCompile(`[ \t]+`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	brokenNumRe    = regexp.MustCompile(`(\d+)\s+\.\s+`)
	paragraphRe    = regexp.MustCompile(`\n\s*\n`)
	sectionNumRe   = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)
	newlineSpaceRe = regexp.MustCompile(` *\n *`)
)

// CleanText 清理抽取文本中的常见伪影：连字符换行、多余空白、
// 被拆散的编号标题（"1 . Overview" -> "1. Overview"）。
// 对相同输入总是产生相同输出。
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineSpaceRe.ReplaceAllString(text, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = brokenNumRe.ReplaceAllString(text, "$1. ")
	return strings.TrimSpace(text)
}

// piece 是分块的最小单位，sep 为块内拼接时使用的分隔符。
type piece struct {
	text string
	sep  string
}

// SplitIntoChunks 将文本按结构分割成重叠的块。
//
// 优先按段落合并；超长段落退化到句子边界，超长句子退化到词边界。
// 除最后一块外，每块不超过 chunkSize；除第一块外，每块以前一块
// 末尾 overlap 个字符（对齐到词边界）开头。空文本返回 nil。
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize/2 {
		overlap = chunkSize / 4
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieceMax := chunkSize - overlap - 2
	pieces := splitPieces(text, pieceMax)
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	cur := ""
	curLen := 0

	for _, pc := range pieces {
		sep := pc.sep
		if cur == "" {
			sep = ""
		}
		pcLen := utf8.RuneCountInString(pc.text)
		sepLen := utf8.RuneCountInString(sep)

		if cur != "" && curLen+sepLen+pcLen > chunkSize {
			flushed := strings.TrimSpace(cur)
			chunks = append(chunks, flushed)

			tail := overlapTail(flushed, overlap)
			cur = tail
			curLen = utf8.RuneCountInString(tail)
			if cur != "" {
				sep = " "
				sepLen = 1
			} else {
				sep = ""
				sepLen = 0
			}
		}

		cur += sep + pc.text
		curLen += sepLen + pcLen
	}

	if flushed := strings.TrimSpace(cur); flushed != "" {
		chunks = append(chunks, flushed)
	}
	return chunks
}

// splitPieces 将文本切成不超过 max 字符的结构单位。
func splitPieces(text string, max int) []piece {
	if max <= 0 {
		max = 1
	}

	var pieces []piece
	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= max {
			pieces = append(pieces, piece{text: para, sep: "\n\n"})
			continue
		}
		for _, sent := range splitSentences(para) {
			if utf8.RuneCountInString(sent) <= max {
				pieces = append(pieces, piece{text: sent, sep: " "})
				continue
			}
			for _, group := range packWords(sent, max) {
				pieces = append(pieces, piece{text: group, sep: " "})
			}
		}
	}
	return pieces
}

// splitSentences 在句末标点后的空白处切分句子。
func splitSentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?', '。', '！', '？':
			j := i + 1
			for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')' || runes[j] == '”') {
				j++
			}
			if j >= len(runes) || unicode.IsSpace(runes[j]) {
				if seg := strings.TrimSpace(string(runes[start:j])); seg != "" {
					out = append(out, seg)
				}
				start = j
				i = j - 1
			}
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// packWords 将超长句子按词边界打包成不超过 max 字符的片段。
// 单个超长词按字符硬切。
func packWords(s string, max int) []string {
	var groups []string
	cur := ""
	curLen := 0

	for _, w := range strings.Fields(s) {
		wLen := utf8.RuneCountInString(w)
		for wLen > max {
			if cur != "" {
				groups = append(groups, cur)
				cur = ""
				curLen = 0
			}
			runes := []rune(w)
			groups = append(groups, string(runes[:max]))
			w = string(runes[max:])
			wLen = utf8.RuneCountInString(w)
		}
		if w == "" {
			continue
		}
		if cur != "" && curLen+1+wLen > max {
			groups = append(groups, cur)
			cur = ""
			curLen = 0
		}
		if cur == "" {
			cur = w
			curLen = wLen
		} else {
			cur += " " + w
			curLen += 1 + wLen
		}
	}
	if cur != "" {
		groups = append(groups, cur)
	}
	return groups
}

// overlapTail 取块末尾 overlap 个字符并对齐到词边界。
// 块本身不长于 overlap 时返回空串，避免块之间完全重复。
func overlapTail(chunk string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= overlap {
		return ""
	}

	tail := string(runes[len(runes)-overlap:])
	idx := strings.IndexAny(tail, " \n")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(tail[idx+1:])
}

// isSectionHeader 判断一行是否像章节标题：编号标题或较短的全大写行。
func isSectionHeader(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > 80 {
		return false
	}
	if sectionNumRe.MatchString(line) {
		return true
	}
	if line == strings.ToUpper(line) && line != strings.ToLower(line) && len(strings.Fields(line)) <= 8 {
		return true
	}
	return false
}

// ExtractSections 为每个块推断其所属章节标题。
// 仅检查每个块的前两行；命中的标题对当前块生效并沿用到后续块，
// 块中未出现标题时沿用上文。
func ExtractSections(chunks []string) []string {
	sections := make([]string, len(chunks))
	current := ""

	for i, chunk := range chunks {
		lines := strings.Split(chunk, "\n")
		if len(lines) > 2 {
			lines = lines[:2]
		}
		for _, line := range lines {
			if isSectionHeader(line) {
				current = strings.TrimSpace(line)
				break
			}
		}
		sections[i] = current
	}
	return sections
}
