package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// endpoint issues JSON requests against a base URL.
type endpoint struct {
	base string
	hc   *http.Client
}

func newEndpoint(baseURL string, hc *http.Client) endpoint {
	if hc == nil {
		hc = http.DefaultClient
	}
	return endpoint{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// call sends a request and returns the raw body of a 2xx response.
// Non-2xx responses are returned as *Error.
func (e endpoint) call(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	target := e.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		// bytes.Reader lets net/http set GetBody, so the request can be replayed
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return out, nil
}

// decodeEnvelope unmarshals the envelope's data field into out.
func decodeEnvelope(body []byte, out any) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}
	return &env, nil
}
