package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/AzielCF/az-prospector/dispatch/domain"
)

const maxBodyBytes = 64 * 1024

// Response is a raw HTTP answer; Body is capped.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// DecodeJSON unmarshals the body, ignoring an empty one.
func (r Response) DecodeJSON(dest interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, dest)
}

// JSONRequest builds, runs and reads a JSON request with its own timeout.
func JSONRequest(ctx context.Context, client *http.Client, timeout time.Duration, method, url string, headers map[string]string, body interface{}) (Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return Response{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Header: resp.Header}, err
	}
	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// TransportFailure maps a network error (timeout, reset, refused) to a transient outcome.
func TransportFailure(err error) domain.Outcome {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.TransientOutcome("timeout")
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.TransientOutcome("timeout")
	default:
		return domain.TransientOutcome(fmt.Sprintf("transport: %v", err))
	}
}

// RetryAfterHeader reads a Retry-After header expressed in seconds.
func RetryAfterHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(h.Get("Retry-After"), "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
