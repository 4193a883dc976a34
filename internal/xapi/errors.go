package xapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the X API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("x api error %d", e.StatusCode)
	}
	return fmt.Sprintf("x api error %d: %s", e.StatusCode, e.Detail)
}

// retryable reports whether the status is worth another attempt. Anything
// else (auth, validation, duplicate content) will not improve by retrying.
func retryable(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// summarizeError digs the human-readable detail out of an X API error body.
// Typical shapes: {"errors":[{"message","detail","title"}]} or
// {"title":"...","detail":"..."}.
func summarizeError(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}

	if errs, ok := m["errors"].([]any); ok && len(errs) > 0 {
		if e0, ok := errs[0].(map[string]any); ok {
			for _, k := range []string{"detail", "message", "title"} {
				if s, ok := e0[k].(string); ok && s != "" {
					return s
				}
			}
		}
	}

	title, _ := m["title"].(string)
	detail, _ := m["detail"].(string)
	switch {
	case title != "" && detail != "":
		return title + ": " + detail
	case detail != "":
		return detail
	case title != "":
		return title
	}
	return ""
}
