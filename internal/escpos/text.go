package escpos

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText unifies line endings, right-trims every line and strips
// blank lines at both ends. The result always ends with exactly one "\n"
// after the last non-blank line. NormalizeText(NormalizeText(s)) equals
// NormalizeText(s).
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}

	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}

	return strings.Join(lines[start:end], "\n") + "\n"
}

// symbols maps characters most receipt printers cannot render to ASCII.
// Accented letters are handled separately by stripping combining marks.
var symbols = map[rune]string{
	'€': "EUR", '£': "GBP", '¥': "JPY", '¢': "c",
	'‘': "'", '’': "'", '‚': ",", '‛': "'", '′': "'", '´': "'",
	'“': `"`, '”': `"`, '„': `"`, '‟': `"`, '″': `"`, '«': `"`, '»': `"`,
	'‹': "<", '›': ">",
	'‐': "-", '‑': "-", '‒': "-", '–': "-", '—': "-", '―': "-", '−': "-",
	'…': "...", '•': "*", '·': ".", '°': "o", 'º': "o", 'ª': "a",
	'¿': "?", '¡': "!", '×': "x", '÷': "/", '±': "+/-",
	'½': "1/2", '¼': "1/4", '¾': "3/4",
	'™': "TM", '©': "(C)", '®': "(R)", '§': "S", '¶': "P",
	'ß': "ss", 'Æ': "AE", 'æ': "ae", 'Œ': "OE", 'œ': "oe",
	'Ø': "O", 'ø': "o", 'Ł': "L", 'ł': "l", 'Đ': "D", 'đ': "d",
	'Ð': "D", 'ð': "d", 'Þ': "Th", 'þ': "th", 'ı': "i",
	'\u00a0': " ", '\u2007': " ", '\u2009': " ", '\u202f': " ",
	'\u200b': "", '\ufeff': "",
}

// stripMarks removes combining diacritics: "á" -> "a", "Ñ" -> "N".
// Chains keep state, so each call gets its own.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Transliterate applies the symbol table and removes diacritics.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := symbols[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	out, _, err := transform.String(stripMarks(), b.String())
	if err != nil {
		return b.String()
	}
	return out
}

// DefaultCodePages is the preference order tried by Codec.
var DefaultCodePages = []*charmap.Charmap{
	charmap.Windows1252,
	charmap.ISO8859_15,
	charmap.CodePage850,
	charmap.CodePage437,
}

// codePageSelectors holds the ESC t n value of each default page in the
// Epson character code table.
var codePageSelectors = map[*charmap.Charmap]byte{
	charmap.CodePage437: 0,
	charmap.CodePage850: 2,
	charmap.Windows1252: 16,
	charmap.ISO8859_15: 40,
}

// asciiOnly replaces every rune outside 7-bit ASCII with '?'.
var asciiOnly = runes.Map(func(r rune) rune {
	if r > unicode.MaxASCII {
		return '?'
	}
	return r
})

// unmappable replaces each rune cm cannot encode with '?'.
func unmappable(cm *charmap.Charmap) transform.Transformer {
	return runes.Map(func(r rune) rune {
		if _, ok := cm.EncodeRune(r); ok {
			return r
		}
		return '?'
	})
}

// Codec turns text into single-byte printer encodings. It never fails:
// the first code page that holds the whole text wins, otherwise the text
// is written in the preferred page with '?' for each rune it lacks.
type Codec struct {
	Transliterate bool
	CodePages     []*charmap.Charmap
}

// Encode returns the encoded bytes and the name of the encoding used.
func (c Codec) Encode(s string) ([]byte, string) {
	b, cm := c.encode(s)
	if cm == nil {
		return b, "ASCII"
	}
	return b, cm.String()
}

// encode returns a nil page only when no code page is configured.
func (c Codec) encode(s string) ([]byte, *charmap.Charmap) {
	if c.Transliterate {
		s = Transliterate(s)
	}

	pages := c.CodePages
	if pages == nil {
		pages = DefaultCodePages
	}
	for _, cm := range pages {
		if b, err := cm.NewEncoder().Bytes([]byte(s)); err == nil {
			return b, cm
		}
	}

	if len(pages) > 0 {
		first := pages[0]
		replaced, _, err := transform.String(unmappable(first), s)
		if err == nil {
			if b, err := first.NewEncoder().Bytes([]byte(replaced)); err == nil {
				return b, first
			}
		}
	}

	out, _, _ := transform.String(asciiOnly, s)
	return []byte(out), nil
}
