package post

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	allowedTag = regexp.MustCompile(`</?(?:b|i|u|s|code|a)(?:\s+href="[^"]*")?>`)
	entity     = regexp.MustCompile(`^&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	protected  = regexp.MustCompile("\x00([0-9]+)\x00")

	mdLink      = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s"]+)\)`)
	mdBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic    = regexp.MustCompile(`\*([^*\n]+?)\*`)
	mdUnderline = regexp.MustCompile(`__(.+?)__`)
	mdStrike    = regexp.MustCompile(`~~(.+?)~~`)
	mdCode      = regexp.MustCompile("`([^`\n]+?)`")
)

// ToTelegramHTML converts the light markup dialect the model writes
// (**bold**, *italic*, __underline__, ~~strike~~, `code`, [text](url)) into
// Telegram HTML. Bare ampersands and angle brackets are escaped first; tags
// Telegram accepts and existing entities are left alone, so running the
// conversion on its own output changes nothing.
func ToTelegramHTML(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")

	var tags []string
	protect := func(tag string) string {
		tags = append(tags, tag)
		return "\x00" + strconv.Itoa(len(tags)-1) + "\x00"
	}

	var b strings.Builder
	last := 0
	for _, loc := range allowedTag.FindAllStringIndex(text, -1) {
		b.WriteString(escapeText(text[last:loc[0]]))
		b.WriteString(protect(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(escapeText(text[last:]))
	out := b.String()

	out = mdLink.ReplaceAllStringFunc(out, func(m string) string {
		sub := mdLink.FindStringSubmatch(m)
		return protect(`<a href="`+sub[2]+`">`) + sub[1] + protect("</a>")
	})
	out = mdBold.ReplaceAllString(out, "<b>$1</b>")
	out = mdItalic.ReplaceAllString(out, "<i>$1</i>")
	out = mdUnderline.ReplaceAllString(out, "<u>$1</u>")
	out = mdStrike.ReplaceAllString(out, "<s>$1</s>")
	out = mdCode.ReplaceAllString(out, "<code>$1</code>")

	return protected.ReplaceAllStringFunc(out, func(m string) string {
		i, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || i >= len(tags) {
			return ""
		}
		return tags[i]
	})
}

func escapeText(s string) string {
	if !strings.ContainsAny(s, "&<>") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			if entity.MatchString(s[i:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// StripTags returns the visible text of Telegram HTML.
func StripTags(markup string) string {
	return html.UnescapeString(allowedTag.ReplaceAllString(markup, ""))
}

// RenderedLength counts the code points Telegram will display for markup.
func RenderedLength(markup string) int {
	return utf8.RuneCountInString(StripTags(markup))
}
