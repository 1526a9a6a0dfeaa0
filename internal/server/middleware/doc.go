// Package middleware provides the gin middleware of the HTTP surface.
package middleware
