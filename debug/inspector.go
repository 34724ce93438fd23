package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	// DefaultInspectorTimeout bounds the whole readiness poll.
	DefaultInspectorTimeout = 15 * time.Second

	inspectorPollInterval = 200 * time.Millisecond
)

// InspectorTimeoutError reports that the inspector endpoint never became
// connectable within the poll window.
type InspectorTimeoutError struct {
	Port    int
	Timeout time.Duration
}

func (e *InspectorTimeoutError) Error() string {
	return fmt.Sprintf("inspector on port %d not ready after %v", e.Port, e.Timeout)
}

// IsInspectorTimeout checks if the error is or wraps an InspectorTimeoutError
func IsInspectorTimeout(err error) bool {
	var timeoutErr *InspectorTimeoutError
	return err != nil && errors.As(err, &timeoutErr)
}

// InspectorTarget is one entry of the discovery endpoint's JSON array.
type InspectorTarget struct {
	Title                string `json:"title,omitempty"`
	URL                  string `json:"url,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// PollInspectorReady polls GET http://127.0.0.1:<port>/json every 200ms until
// a target advertises a connectable debugger endpoint, and returns that URL.
// Connection refusals and malformed JSON mean "not ready yet" and are
// retried; the poll gives up with an InspectorTimeoutError once timeout
// elapses from the first attempt.
//
// Polling the endpoint is authoritative: scraping the subprocess's output for
// a readiness line is unreliable across nested shell layers, whereas the
// protocol endpoint only answers once the subprocess accepts connections.
func PollInspectorReady(ctx context.Context, logger log.Logger, port int, timeout time.Duration) (string, error) {
	if logger == nil {
		logger = log.New()
	}
	if timeout <= 0 {
		timeout = DefaultInspectorTimeout
	}

	client := &http.Client{Timeout: inspectorPollInterval}
	endpoint := fmt.Sprintf("http://127.0.0.1:%d/json", port)
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(inspectorPollInterval)
	defer ticker.Stop()

	for {
		if url, ok := probeInspector(client, endpoint); ok {
			logger.Debug("Inspector ready", "port", port, "url", url)
			return url, nil
		}
		if time.Now().After(deadline) {
			return "", &InspectorTimeoutError{Port: port, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func probeInspector(client *http.Client, endpoint string) (string, bool) {
	resp, err := client.Get(endpoint)
	if err != nil {
		// Connection refused: subprocess not listening yet.
		return "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	var targets []InspectorTarget
	if err := json.Unmarshal(body, &targets); err != nil {
		// Partially written response, retry on the next tick.
		return "", false
	}
	for _, t := range targets {
		if t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, true
		}
	}
	return "", false
}
