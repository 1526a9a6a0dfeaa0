// Package security implements the gateway's content scan.
//
// A Scanner walks every string in a decoded JSON payload and rejects it on
// the first hit: oversized strings, null bytes, or a match in the ordered
// rule table. Values stored under a "url" key must also be http or https
// URLs whose host is on the domain allowlist (subdomains of an allowed
// domain are accepted).
//
// Rules are data. XSSRules and SQLInjectionRules return the built-in tables
// and callers may append their own with WithRules.
package security
