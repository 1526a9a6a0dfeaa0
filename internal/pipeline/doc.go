// Package pipeline runs a gateway request through its gate stages and the
// proxy call.
//
// Stages run strictly in order and the first failure ends the request:
//
//	security scan -> rate limit -> input validation -> auth -> proxy
//
// Every request, whatever the outcome, produces exactly one Envelope
// tagged with a freshly generated request id.
package pipeline
