// Package httputil provides shared JSON response/request helpers for the
// HTTP handlers so every endpoint answers with the same envelope.
package httputil
