// Package validation checks the shape of requests that passed the security
// scan: the method, the endpoint, well-known payload fields and the
// required fields of each proxied target.
//
// Field checks are a table keyed by field name. Each entry is a
// go-playground/validator tag plus the message returned for each failing
// tag, so new fields are added as data.
package validation
