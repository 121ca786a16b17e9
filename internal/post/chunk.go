package post

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits Telegram HTML into pieces showing at most limit code points,
// cutting at paragraph breaks where possible, then at line breaks, then at
// spaces. Cuts never fall inside a tag or an entity, and a span left open at
// a cut is closed at the end of its chunk and reopened at the start of the
// next one.
func Chunk(text string, limit int) []string {
	if limit <= 0 || RenderedLength(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, piece := range pieces(text, limit) {
		n := RenderedLength(piece)
		sep := 0
		if curLen > 0 {
			sep = 2
		}
		if curLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(piece)
		curLen += sep + n
	}
	flush()
	return balance(chunks)
}

// pieces breaks text into paragraphs no longer than limit.
func pieces(text string, limit int) []string {
	var out []string
	for _, para := range splitOutsideTags(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		out = append(out, splitLong(para, limit, []string{"\n", " "})...)
	}
	return out
}

func splitLong(s string, limit int, seps []string) []string {
	if RenderedLength(s) <= limit {
		return []string{s}
	}
	if len(seps) == 0 {
		return hardSplit(s, limit)
	}
	sep := seps[0]
	parts := splitOutsideTags(s, sep)
	if len(parts) == 1 {
		return splitLong(s, limit, seps[1:])
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	for _, p := range parts {
		n := RenderedLength(p)
		if n > limit {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
				curLen = 0
			}
			out = append(out, splitLong(p, limit, seps[1:])...)
			continue
		}
		sepLen := 0
		if cur.Len() > 0 {
			sepLen = len(sep)
		}
		if curLen+sepLen+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
			sepLen = 0
		}
		if sepLen > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(p)
		curLen += sepLen + n
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// splitOutsideTags is strings.Split that ignores sep inside <...>.
func splitOutsideTags(s, sep string) []string {
	var out []string
	inTag := false
	start := 0
	for i := 0; i < len(s); {
		switch {
		case s[i] == '<':
			inTag = true
		case s[i] == '>':
			inTag = false
		case !inTag && strings.HasPrefix(s[i:], sep):
			out = append(out, s[start:i])
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	return append(out, s[start:])
}

// hardSplit cuts s every limit visible code points. Tags and entities are
// kept whole; opening tags right before a cut move to the next piece.
func hardSplit(s string, limit int) []string {
	var out []string
	var cur, pending strings.Builder
	width := 0
	for _, tok := range tokenize(s) {
		if tok.tag {
			if isClosing(tok.text) {
				cur.WriteString(pending.String())
				pending.Reset()
				cur.WriteString(tok.text)
			} else {
				pending.WriteString(tok.text)
			}
			continue
		}
		if width+1 > limit && width > 0 {
			out = append(out, cur.String())
			cur.Reset()
			width = 0
		}
		cur.WriteString(pending.String())
		pending.Reset()
		cur.WriteString(tok.text)
		width++
	}
	cur.WriteString(pending.String())
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

type token struct {
	text string
	tag  bool
}

// tokenize splits markup into tags, entities and single code points.
func tokenize(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		switch s[i] {
		case '<':
			if loc := allowedTag.FindStringIndex(s[i:]); loc != nil && loc[0] == 0 {
				toks = append(toks, token{text: s[i : i+loc[1]], tag: true})
				i += loc[1]
				continue
			}
		case '&':
			if loc := entity.FindStringIndex(s[i:]); loc != nil {
				toks = append(toks, token{text: s[i : i+loc[1]]})
				i += loc[1]
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		toks = append(toks, token{text: s[i : i+size]})
		i += size
	}
	return toks
}

func isClosing(tag string) bool { return strings.HasPrefix(tag, "</") }

func tagName(tag string) string {
	name := strings.TrimLeft(tag, "</")
	if i := strings.IndexAny(name, " >"); i >= 0 {
		name = name[:i]
	}
	return name
}

// balance closes spans still open at the end of a chunk and reopens them at
// the start of the next one.
func balance(chunks []string) []string {
	var open []string
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		var b strings.Builder
		for _, tag := range open {
			b.WriteString(tag)
		}
		b.WriteString(chunk)

		for _, tag := range allowedTag.FindAllString(chunk, -1) {
			if !isClosing(tag) {
				open = append(open, tag)
				continue
			}
			name := tagName(tag)
			for i := len(open) - 1; i >= 0; i-- {
				if tagName(open[i]) == name {
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
		}
		for i := len(open) - 1; i >= 0; i-- {
			b.WriteString("</" + tagName(open[i]) + ">")
		}
		out = append(out, b.String())
	}
	return out
}
