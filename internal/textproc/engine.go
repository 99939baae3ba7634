package textproc

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type compiledRule interface {
	Apply(input string) string
}

// Correction is one entry of the built-in correction table.
type Correction struct {
	From string
	To   string
}

// DefaultCorrections fixes common recognition slips. Order matters.
var DefaultCorrections = []Correction{
	{From: "there are", To: "their"},
	{From: "your welcome", To: "you're welcome"},
	{From: "its a", To: "it's a"},
	{From: "cant", To: "can't"},
	{From: "wont", To: "won't"},
	{From: "dont", To: "don't"},
	{From: "shouldnt", To: "shouldn't"},
	{From: "wouldnt", To: "wouldn't"},
	{From: "couldnt", To: "couldn't"},
}

// Engine applies the correction table followed by user rules, once each, in order.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the built-in corrections plus the rules file at path, if any.
func NewEngine(path string) (*Engine, error) {
	rules, err := compileCorrections(DefaultCorrections)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(path) == "" {
		return &Engine{rules: rules}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{rules: rules}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	userRules, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}

	return &Engine{rules: append(rules, userRules...)}, nil
}

// Apply runs every rule once, in table order.
func (e *Engine) Apply(text string) string {
	result := text
	for _, rule := range e.rules {
		result = rule.Apply(result)
	}
	return result
}

// Len reports the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

func compileCorrections(table []Correction) ([]compiledRule, error) {
	rules := make([]compiledRule, 0, len(table))
	for _, entry := range table {
		rule, err := newLiteralRule(entry.From, entry.To)
		if err != nil {
			return nil, fmt.Errorf("correction %q: %w", entry.From, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseRules reads one rule per line: "from => to" literals and
// "s/pattern/replacement/flags" regexes. Blank lines and # comments are skipped.
func parseRules(contents string) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule compiledRule
			err  error
		)
		switch {
		case looksLikeRegexRule(line):
			rule, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			from, to, _ := strings.Cut(line, "=>")
			rule, err = newLiteralRule(from, to)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

type literalRule struct {
	replacement string
	re          *regexp.Regexp
}

// newLiteralRule matches case-insensitively on word boundaries. A boundary is
// only required on an edge that is itself a word character.
func newLiteralRule(from string, to string) (compiledRule, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordChar(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordChar(from[len(from)-1]) {
		pattern += `\b`
	}

	return literalRule{replacement: to, re: regexp.MustCompile("(?i)" + pattern)}, nil
}

func (r literalRule) Apply(input string) string {
	return r.re.ReplaceAllLiteralString(input, r.replacement)
}

// regexRule matches case-insensitively. Without the g flag only the first
// match is replaced.
type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (compiledRule, error) {
	delim := line[1]
	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) string {
	if r.global {
		return r.re.ReplaceAllString(input, r.replacement)
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	return input[:loc[0]] + string(expanded) + input[loc[1]:]
}

// parseDelimited reads up to the next unescaped delim. Escapes are kept for
// the regex compiler.
func parseDelimited(line string, start int, delim byte) (string, int, error) {
	escaped := false
	for index := start; index < len(line); index++ {
		switch {
		case escaped:
			escaped = false
		case line[index] == '\\':
			escaped = true
		case line[index] == delim:
			return line[start:index], index + 1, nil
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordChar(char byte) bool {
	return char == '_' ||
		(char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9')
}

// looksLikeRegexRule reports an s-command with a punctuation delimiter, so
// literal rules such as "solid => SOLID" are not mistaken for one.
func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordChar(line[1]) && line[1] != ' ' && line[1] != '\t'
}
