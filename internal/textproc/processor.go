package textproc

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

var (
	fillerPattern     = regexp.MustCompile(`(?i)\b(um|uh|like|you know|sort of|kind of)\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Processor cleans up dictated text. It is safe for concurrent use and its
// correction engine can be swapped while in use.
type Processor struct {
	mu     sync.RWMutex
	engine *Engine
}

func NewProcessor(engine *Engine) *Processor {
	if engine == nil {
		engine, _ = NewEngine("")
	}
	return &Processor{engine: engine}
}

// Process removes fillers, applies corrections, normalizes whitespace,
// capitalizes the first letter and terminates the sentence.
func (p *Processor) Process(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	processed := fillerPattern.ReplaceAllString(text, "")
	processed = p.currentEngine().Apply(processed)
	processed = whitespacePattern.ReplaceAllString(processed, " ")
	processed = strings.TrimSpace(processed)
	if processed == "" {
		return ""
	}

	processed = capitalizeFirst(processed)
	if !strings.HasSuffix(processed, ".") && !strings.HasSuffix(processed, "!") && !strings.HasSuffix(processed, "?") {
		processed += "."
	}
	return processed
}

// SetEngine replaces the correction engine used by later calls.
func (p *Processor) SetEngine(engine *Engine) {
	if engine == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = engine
}

func (p *Processor) currentEngine() *Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}
