package interfaces

import "net/http"

// HTTPHandler is the surface the transport layer must satisfy.
type HTTPHandler interface {
	http.Handler
}
