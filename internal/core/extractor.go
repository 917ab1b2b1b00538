package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// arrowGlyphs mark lines that document a directive rather than issue one,
// e.g. "@agent -> runs the agent".
var arrowGlyphs = []string{"→", "←", "⇒", "⟶", "->", "=>", "<-"}

// ExtractDirectives returns the directives in text, in line order. A
// directive is a line that starts (after optional indentation of fewer than
// four columns) with trigger, then whitespace, then a non-empty instruction.
// Lines inside closed code fences, indented code, tables, blockquotes and
// headings never yield directives, nor do lines that quote the trigger in
// inline code or document it with arrows.
func ExtractDirectives(text, trigger string) []models.Directive {
	if trigger == "" || !strings.Contains(text, trigger) {
		return nil
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := blankFencedBlocks(strings.Split(text, "\n"))

	var out []models.Directive
	for i, line := range lines {
		if rejectLine(line, trigger) {
			continue
		}
		body := strings.TrimLeftFunc(line, unicode.IsSpace)
		if !strings.HasPrefix(body, trigger) {
			continue
		}
		rest := body[len(trigger):]
		r, _ := utf8.DecodeRuneInString(rest)
		if rest == "" || !unicode.IsSpace(r) {
			continue
		}
		instruction := strings.TrimSpace(rest)
		if instruction == "" {
			continue
		}
		out = append(out, models.Directive{
			SourceLine:  line,
			Instruction: instruction,
			LineNumber:  i + 1,
		})
	}
	return out
}

// blankFencedBlocks replaces every closed ``` or ~~~ block, fences included,
// with empty lines so line numbers elsewhere stay put. An opener with no
// matching close is left in place.
func blankFencedBlocks(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)

	for i := 0; i < len(out); i++ {
		ch, n := fenceRun(out[i])
		if n == 0 {
			continue
		}
		end := -1
		for j := i + 1; j < len(out); j++ {
			if c, m := fenceRun(out[j]); c == ch && m >= n {
				end = j
				break
			}
		}
		if end < 0 {
			continue
		}
		for k := i; k <= end; k++ {
			out[k] = ""
		}
		i = end
	}
	return out
}

// fenceRun reports the fence character and run length opening line, or 0.
func fenceRun(line string) (byte, int) {
	t := strings.TrimSpace(line)
	if len(t) < 3 || (t[0] != '`' && t[0] != '~') {
		return 0, 0
	}
	ch := t[0]
	n := 0
	for n < len(t) && t[n] == ch {
		n++
	}
	if n < 3 {
		return 0, 0
	}
	return ch, n
}

func rejectLine(line, trigger string) bool {
	if strings.Contains(line, "|") {
		return true
	}
	for _, g := range arrowGlyphs {
		if strings.Contains(line, g) {
			return true
		}
	}
	if strings.Contains(line, "```") || strings.Contains(line, "~~~") {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, ">") {
		return true
	}
	if strings.HasPrefix(trimmed, "#") && strings.Contains(trimmed, trigger) {
		return true
	}
	if indentWidth(line) >= 4 {
		return true
	}
	if strings.Contains(line, "`"+trigger) || strings.Contains(line, trigger+"`") {
		return true
	}
	return false
}

// indentWidth counts leading columns, with a tab advancing to the next
// multiple of four.
func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}
