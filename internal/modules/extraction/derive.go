package extraction

import (
	"strings"
	"unicode"
)

// Derived holds the heuristic reading of one page of print copy.
type Derived struct {
	MainMessage    string
	SupportingText string
	CallToAction   string
	Entities       []string
}

var imperativeVerbs = map[string]bool{
	"vote": true, "elect": true, "re-elect": true, "reelect": true, "support": true, "join": true,
	"call": true, "visit": true, "attend": true, "register": true, "donate": true, "come": true,
	"contact": true, "sign": true, "rsvp": true, "learn": true, "help": true, "volunteer": true,
	"text": true, "email": true, "scan": true, "stop": true, "save": true, "protect": true,
	"say": true, "tell": true, "keep": true, "remember": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "for": true, "of": true, "to": true,
	"in": true, "on": true, "at": true, "by": true, "with": true, "your": true, "our": true, "we": true,
	"i": true, "you": true, "it": true, "is": true, "this": true, "that": true, "paid": true,
}

// Derive extracts main message, supporting text, call-to-action, and capitalized
// entity runs from page text. It is pure and deterministic.
func Derive(text string) Derived {
	lines := splitLines(text)
	if len(lines) == 0 {
		return Derived{}
	}
	d := Derived{Entities: entities(lines)}

	for _, l := range lines {
		for _, s := range splitSentences(l) {
			if isCallToAction(s) {
				d.CallToAction = s
				break
			}
		}
		if d.CallToAction != "" {
			break
		}
	}

	d.MainMessage = lines[0]
	rest := make([]string, 0, len(lines))
	for _, l := range lines[1:] {
		if l == d.CallToAction {
			continue
		}
		rest = append(rest, l)
	}
	d.SupportingText = strings.Join(rest, " ")
	return d
}

func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func splitSentences(line string) []string {
	var out []string
	start := 0
	for i, r := range line {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(line[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isCallToAction(sentence string) bool {
	first := strings.SplitN(sentence, " ", 2)[0]
	return imperativeVerbs[strings.ToLower(trimPunct(first))]
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) && r != '-' })
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func endsSentence(raw string) bool {
	return strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, "!") || strings.HasSuffix(raw, "?")
}

// entities returns runs of capitalized words. A run breaks on punctuation. A
// lone capitalized word opening a sentence is skipped, as are verbs and stop words.
func entities(lines []string) []string {
	var out []string
	seen := map[string]bool{}
	emit := func(run []string) {
		if len(run) == 0 {
			return
		}
		name := strings.Join(run, " ")
		if k := strings.ToLower(name); !seen[k] {
			seen[k] = true
			out = append(out, name)
		}
	}

	for _, line := range lines {
		words := strings.Fields(line)
		var run []string
		runStartsSentence := false
		sentenceStart := true
		for _, raw := range words {
			w := trimPunct(raw)
			lw := strings.ToLower(w)
			eligible := w != "" && isCapitalized(w) && !stopWords[lw] && !imperativeVerbs[lw]
			if eligible {
				if len(run) == 0 {
					runStartsSentence = sentenceStart
				}
				run = append(run, w)
			} else {
				if !(runStartsSentence && len(run) == 1) {
					emit(run)
				}
				run = nil
			}
			breaks := raw != w && len(raw) > 0 && unicode.IsPunct(rune(raw[len(raw)-1]))
			if breaks && len(run) > 0 {
				if !(runStartsSentence && len(run) == 1) {
					emit(run)
				}
				run = nil
			}
			sentenceStart = endsSentence(raw)
		}
		if !(runStartsSentence && len(run) == 1) {
			emit(run)
		}
	}
	return out
}
