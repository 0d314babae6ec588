package partner

import (
	"fmt"
	"net/http"
)

// StatusError carries a retryable HTTP outcome through the resilience stack
// so the breaker counts it as a failure and the retry layer keeps going.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("partner returned status %d", e.StatusCode)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
