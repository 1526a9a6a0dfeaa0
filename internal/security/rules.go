package security

import "regexp"

// Rule categories.
const (
	CategoryXSS = "xss"
	CategorySQL = "sql"
)

// Rule rejects any string its Pattern matches.
type Rule struct {
	Name     string
	Category string
	Pattern  *regexp.Regexp
	Message  string
}

const (
	msgDangerousContent = "Potentially dangerous content detected"
	msgSQLPattern       = "Potentially malicious SQL pattern detected"
)

var xssRules = []Rule{
	{Name: "script-tag", Pattern: regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)},
	{Name: "javascript-scheme", Pattern: regexp.MustCompile(`(?i)javascript:`)},
	{Name: "event-handler", Pattern: regexp.MustCompile(`(?i)on\w+\s*=`)},
	{Name: "eval-call", Pattern: regexp.MustCompile(`(?i)eval\s*\(`)},
	{Name: "css-expression", Pattern: regexp.MustCompile(`(?i)expression\s*\(`)},
	{Name: "vbscript-scheme", Pattern: regexp.MustCompile(`(?i)vbscript:`)},
	{Name: "html-comment", Pattern: regexp.MustCompile(`(?s)<!--.*?-->`)},
	{Name: "iframe-tag", Pattern: regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)},
}

var sqlRules = []Rule{
	{Name: "sql-keyword", Pattern: regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b`)},
	{Name: "sql-comment", Pattern: regexp.MustCompile(`(--|#|/\*|\*/)`)},
	{Name: "sql-tautology", Pattern: regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`)},
	{Name: "sql-quoted-tautology", Pattern: regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'[^']*'`)},
}

func withCategory(rules []Rule, category, message string) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Category = category
		r.Message = message
		out[i] = r
	}
	return out
}

// XSSRules returns the markup and script injection rules.
func XSSRules() []Rule {
	return withCategory(xssRules, CategoryXSS, msgDangerousContent)
}

// SQLInjectionRules returns the SQL injection rules.
func SQLInjectionRules() []Rule {
	return withCategory(sqlRules, CategorySQL, msgSQLPattern)
}

// DefaultRules returns the XSS rules followed by the SQL injection rules.
func DefaultRules() []Rule {
	return append(XSSRules(), SQLInjectionRules()...)
}

// Match returns the first rule in rules matching s.
func Match(rules []Rule, s string) (Rule, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(s) {
			return r, true
		}
	}
	return Rule{}, false
}
