package security

import (
	"fmt"
	"maps"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// Built-in check names reported in ViolationError.Rule.
const (
	CheckRequestSize  = "request-size"
	CheckStringLength = "string-length"
	CheckNullByte     = "null-byte"
	CheckURL          = "url"
	CheckEndpoint     = "endpoint"
	CheckMethod       = "method"
)

const urlKey = "url"

var endpointPattern = regexp.MustCompile(`^/[A-Za-z0-9._~/-]*$`)

// Scanner rejects dangerous request content. It is safe for concurrent use.
type Scanner struct {
	rules           []Rule
	maxRequestSize  int
	maxStringLength int
	domains         []string
	sanitizer       *bluemonday.Policy
	logger          observability.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithRules appends rules after the built-in table.
func WithRules(rules ...Rule) Option {
	return func(s *Scanner) {
		s.rules = append(s.rules, rules...)
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner returns a Scanner using the default rules and the limits and
// allowlist from cfg.
func NewScanner(cfg config.SecurityConfig, opts ...Option) *Scanner {
	s := &Scanner{
		rules:           DefaultRules(),
		maxRequestSize:  cfg.MaxRequestSize,
		maxStringLength: cfg.MaxStringLength,
		sanitizer:       bluemonday.StrictPolicy(),
		logger:          observability.NopLogger(),
	}
	for _, d := range cfg.AllowedDomains {
		if d = normalizeHost(d); d != "" {
			s.domains = append(s.domains, d)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule table in evaluation order.
func (s *Scanner) Rules() []Rule {
	return slices.Clone(s.rules)
}

// CheckSize rejects a serialized payload larger than the request limit.
func (s *Scanner) CheckSize(n int) error {
	if s.maxRequestSize > 0 && n > s.maxRequestSize {
		return violation(CheckRequestSize, "", "Request size exceeds maximum allowed")
	}
	return nil
}

// CheckEndpoint rejects endpoints that are not plain absolute paths.
func (s *Scanner) CheckEndpoint(endpoint string) error {
	if !endpointPattern.MatchString(endpoint) ||
		strings.Contains(endpoint, "..") ||
		strings.Contains(endpoint, "//") {
		return violation(CheckEndpoint, "endpoint", "Invalid endpoint path")
	}
	return nil
}

// CheckMethod rejects a method that sanitizing would alter, so markup in
// it never reaches an error message.
func (s *Scanner) CheckMethod(method string) error {
	if s.Sanitize(method) != method {
		return violation(CheckMethod, "method", "Invalid request method")
	}
	return nil
}

// Scan walks value, a decoded JSON document, and returns a
// *ViolationError for the first offending string.
func (s *Scanner) Scan(value any) error {
	return s.walk("data", "", value)
}

func (s *Scanner) walk(path, key string, value any) error {
	switch v := value.(type) {
	case string:
		ve := s.checkString(v)
		if ve == nil && key == urlKey {
			ve = s.checkURL(v)
		}
		if ve != nil {
			ve.Path = path
			s.logger.Debug("payload rejected", observability.String("detail", ve.Detail()))
			return ve
		}
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(v)) {
			if err := s.walk(path+"."+k, k, v[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range v {
			if err := s.walk(path+"["+strconv.Itoa(i)+"]", key, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckString applies the length limit, the null byte check and the rule
// table to a single string.
func (s *Scanner) CheckString(str string) error {
	if ve := s.checkString(str); ve != nil {
		return ve
	}
	return nil
}

func (s *Scanner) checkString(str string) *ViolationError {
	if s.maxStringLength > 0 && len(str) > s.maxStringLength {
		return violation(CheckStringLength, "", "String length exceeds maximum allowed")
	}
	if rule, ok := Match(s.rules, str); ok {
		return violation(rule.Name, "", rule.Message)
	}
	if strings.ContainsRune(str, 0) {
		return violation(CheckNullByte, "", "Null bytes not allowed")
	}
	return nil
}

// CheckURL accepts http and https URLs on an allowed domain or one of its
// subdomains.
func (s *Scanner) CheckURL(raw string) error {
	if ve := s.checkURL(raw); ve != nil {
		return ve
	}
	return nil
}

func (s *Scanner) checkURL(raw string) *ViolationError {
	u, err := url.Parse(raw)
	if err != nil {
		return violation(CheckURL, "", "Invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return violation(CheckURL, "", "Only HTTP and HTTPS URLs are allowed")
	}

	host := normalizeHost(u.Hostname())
	if host == "" || net.ParseIP(host) != nil {
		return violation(CheckURL, "", "URL must have a valid domain")
	}
	if !s.DomainAllowed(host) {
		return violation(CheckURL, "", fmt.Sprintf("Domain '%s' is not in the allowed list", host))
	}
	return nil
}

// DomainAllowed reports whether host is an allowed domain or a subdomain
// of one.
func (s *Scanner) DomainAllowed(host string) bool {
	host = normalizeHost(host)
	for _, d := range s.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// Sanitize strips markup, escapes HTML entities, removes null bytes and
// trims surrounding whitespace.
func (s *Scanner) Sanitize(input string) string {
	out := s.sanitizer.Sanitize(strings.ReplaceAll(input, "\x00", ""))
	return strings.TrimSpace(out)
}
