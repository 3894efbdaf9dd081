// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound push gateway calls. The timeout is the only
// cancellation in play for an individual send.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
