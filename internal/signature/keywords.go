package signature

import "strings"

// KeywordExtractor derives categorical keywords from normalized code.
// Retrieval depends only on this interface so the substring heuristics can be
// swapped for similarity search later.
type KeywordExtractor interface {
	Keywords(normalized string) []string
}

// Indicator maps a keyword to the substrings that suggest it.
type Indicator struct {
	Keyword string
	Tokens  []string
}

// DefaultIndicators is the built-in indicator table, checked in order.
var DefaultIndicators = []Indicator{
	{Keyword: "sql", Tokens: []string{"sql", "query"}},
	{Keyword: "credentials", Tokens: []string{"password", "secret", "credential", "api_key", "apikey", "token"}},
	{Keyword: "code_execution", Tokens: []string{"eval(", "exec(", "exec.command", "subprocess", "system("}},
	{Keyword: "network", Tokens: []string{"http", "request", "fetch(", "socket"}},
	{Keyword: "file_io", Tokens: []string{"file", "read(", "write(", "os.open"}},
	{Keyword: "loop", Tokens: []string{"for ", "while ", "loop"}},
	{Keyword: "null_access", Tokens: []string{"unwrap", ".get(", "expect(", "nil", "null", "none"}},
	{Keyword: "panic", Tokens: []string{"panic", "crash", "abort("}},
	{Keyword: "unsafe", Tokens: []string{"unsafe"}},
	{Keyword: "async", Tokens: []string{"async", "await", "go func"}},
	{Keyword: "concurrency", Tokens: []string{"mutex", "lock", "atomic", "chan "}},
	{Keyword: "allocation", Tokens: []string{"vec!", "push(", "append(", "make("}},
	{Keyword: "clone", Tokens: []string{".clone()", "copy("}},
	{Keyword: "todo", Tokens: []string{"todo", "fixme"}},
}

// SubstringExtractor reports every indicator whose tokens appear in the code.
type SubstringExtractor struct {
	Indicators []Indicator
}

// NewSubstringExtractor returns an extractor over DefaultIndicators.
func NewSubstringExtractor() *SubstringExtractor {
	return &SubstringExtractor{Indicators: DefaultIndicators}
}

// Keywords returns matching keywords in indicator-table order, without duplicates.
func (e *SubstringExtractor) Keywords(normalized string) []string {
	lower := strings.ToLower(normalized)
	var out []string
	seen := make(map[string]bool)
	for _, ind := range e.Indicators {
		if seen[ind.Keyword] {
			continue
		}
		for _, tok := range ind.Tokens {
			if strings.Contains(lower, tok) {
				out = append(out, ind.Keyword)
				seen[ind.Keyword] = true
				break
			}
		}
	}
	return out
}

// DetectLanguage guesses the language of a snippet, returning "unknown" when unsure.
func DetectLanguage(code string) string {
	lower := strings.ToLower(code)
	checks := []struct {
		lang   string
		tokens []string
	}{
		{"go", []string{"package ", "func ", ":= "}},
		{"rust", []string{"fn ", "impl ", "let mut ", "pub struct "}},
		{"python", []string{"def ", "elif ", "import ", "self."}},
		{"javascript", []string{"const ", "function ", "=> ", "export "}},
		{"java", []string{"public class", "static void main", "private "}},
	}
	for _, c := range checks {
		for _, tok := range c.tokens {
			if strings.Contains(lower, tok) {
				return c.lang
			}
		}
	}
	return "unknown"
}
