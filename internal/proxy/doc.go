// Package proxy forwards gated requests to the backend.
//
// Client is the narrow interface the pipeline depends on. HTTPClient
// implements it over resty with a bounded timeout, retries for idempotent
// methods, a circuit breaker and an outbound rate limit. Mux serves some
// endpoints in process and sends everything else upstream, so that local
// endpoints such as login pass through the same gates as proxied ones.
package proxy
