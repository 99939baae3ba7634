package dictation

import (
	"strings"
	"unicode"

	"resumechat/internal/ports"
)

// DefaultOverlapWindow is how many trailing words of the accumulated text an
// interim hypothesis must restate before its overlapping prefix is stripped.
const DefaultOverlapWindow = 5

// Assembler holds the text of one dictation session: the host text captured
// at start, the confirmed speech and the live hypothesis. It is not safe for
// concurrent use.
type Assembler struct {
	window int

	initial     string
	accumulated string
	live        string

	// settledAt is the word offset in accumulated where live text settled
	// by FlushLive begins, or -1. It marks an utterance the recognizer has
	// not finalized and may still restate in full.
	settledAt int
}

func New(window int) *Assembler {
	if window <= 0 {
		window = DefaultOverlapWindow
	}
	return &Assembler{window: window, settledAt: -1}
}

// Reset begins a new session on top of initial.
func (a *Assembler) Reset(initial string) {
	a.initial = initial
	a.Clear()
}

// Clear drops the session's speech but keeps the initial text.
func (a *Assembler) Clear() {
	a.accumulated = ""
	a.live = ""
	a.settledAt = -1
}

func (a *Assembler) Initial() string     { return a.initial }
func (a *Assembler) Accumulated() string { return a.accumulated }
func (a *Assembler) Live() string        { return a.live }

// SetLive replaces the live hypothesis with fragment minus any words that
// restate the end of the accumulated text.
func (a *Assembler) SetLive(fragment string) string {
	a.live = a.trim(fragment)
	return a.live
}

// CommitFinal merges a final fragment and clears the live hypothesis.
// It reports whether the accumulated text grew.
func (a *Assembler) CommitFinal(fragment string) bool {
	a.live = ""
	grew := a.merge(fragment)
	a.settledAt = -1
	return grew
}

// FlushLive settles the live hypothesis into the accumulated text.
func (a *Assembler) FlushLive() bool {
	live := a.live
	a.live = ""
	start := len(strings.Fields(a.accumulated))
	if !a.merge(live) {
		return false
	}
	if a.settledAt < 0 {
		a.settledAt = start
	}
	return true
}

// Composed is the raw value for the host buffer while speech is in flight.
func (a *Assembler) Composed() string {
	return onto(a.initial, join(a.accumulated, a.live))
}

// Finalized is the host buffer value once the accumulated speech has been
// post-processed. The initial text is never rewritten.
func (a *Assembler) Finalized(post ports.PostProcessor) string {
	speech := a.accumulated
	if post != nil {
		speech = post.Process(speech)
	}
	return onto(a.initial, speech)
}

func (a *Assembler) merge(fragment string) bool {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return false
	}
	if containsWords(a.accumulated, fragment) {
		return false
	}

	fresh := a.trim(fragment)
	if fresh == "" {
		return false
	}
	a.accumulated = join(a.accumulated, fresh)
	return true
}

// trim strips the overlap with the accumulated tail. A restatement of the
// whole settled utterance counts as overlap even when it is shorter than the
// window.
func (a *Assembler) trim(fragment string) string {
	accWords := len(strings.Fields(a.accumulated))
	minOverlap := min(a.window, accWords)
	if a.settledAt >= 0 && a.settledAt < accWords {
		minOverlap = min(minOverlap, accWords-a.settledAt)
	}
	return trimOverlap(a.accumulated, fragment, minOverlap)
}

// TrimOverlap strips the longest prefix of fragment that repeats the tail of
// accumulated. At least min(window, words in accumulated) words must match,
// so a single coincidentally repeated word is kept.
func TrimOverlap(accumulated string, fragment string, window int) string {
	if window <= 0 {
		window = DefaultOverlapWindow
	}
	return trimOverlap(accumulated, fragment, min(window, len(strings.Fields(accumulated))))
}

func trimOverlap(accumulated string, fragment string, minOverlap int) string {
	fragment = strings.TrimSpace(fragment)
	accWords := strings.Fields(accumulated)
	fragWords := strings.Fields(fragment)
	if len(accWords) == 0 || len(fragWords) == 0 {
		return fragment
	}
	minOverlap = max(minOverlap, 1)

	for k := min(len(accWords), len(fragWords)); k >= minOverlap; k-- {
		if sameWords(accWords[len(accWords)-k:], fragWords[:k]) {
			return strings.Join(fragWords[k:], " ")
		}
	}
	return fragment
}

// containsWords reports whether fragment's words appear contiguously in text.
func containsWords(text string, fragment string) bool {
	haystack := strings.Fields(text)
	needle := strings.Fields(fragment)
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for start := 0; start+len(needle) <= len(haystack); start++ {
		if sameWords(haystack[start:start+len(needle)], needle) {
			return true
		}
	}
	return false
}

func sameWords(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeWord(a[i]) != normalizeWord(b[i]) {
			return false
		}
	}
	return true
}

// normalizeWord ignores case and edge punctuation added by smart formatting.
func normalizeWord(word string) string {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if trimmed == "" {
		trimmed = word
	}
	return strings.ToLower(trimmed)
}

// onto appends speech to the host text without altering the host text itself.
func onto(initial string, speech string) string {
	switch {
	case speech == "":
		return initial
	case strings.TrimSpace(initial) == "":
		return speech
	case unicode.IsSpace(rune(initial[len(initial)-1])):
		return initial + speech
	default:
		return initial + " " + speech
	}
}

func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}
