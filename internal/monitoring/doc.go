// Package monitoring forwards caught failures to the error-monitoring
// service. Application code calls CaptureException; the process installs
// the concrete Sink (Sentry in production) once at startup via SetSink.
package monitoring
