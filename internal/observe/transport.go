// Package observe wires optional telemetry into the outgoing HTTP path.
package observe

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport wraps the outgoing transport with OpenTelemetry
// instrumentation when enabled, and returns it untouched otherwise. Every
// backend call, including credential renewal, goes through the returned
// round tripper.
func HTTPTransport(wrapped http.RoundTripper, enabled bool) http.RoundTripper {
	if !enabled {
		return wrapped
	}

	return otelhttp.NewTransport(wrapped)
}
