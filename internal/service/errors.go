package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SubmitError is a transport-level failure reaching the processing service,
// or a non-success status from a strategy that treats status as authoritative.
type SubmitError struct {
	Service string
	Status  int // 0 when no response was received
	Body    string
	Err     error
}

func (e *SubmitError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s submit: %v", e.Service, e.Err)
	default:
		return fmt.Sprintf("%s submit: HTTP %d: %s", e.Service, e.Status, truncate(e.Body, 200))
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ServiceReportedError is a failure the service reported inside its body.
type ServiceReportedError struct {
	Service string
	Message string
	Body    string
}

func (e *ServiceReportedError) Error() string {
	return fmt.Sprintf("%s reported error: %s", e.Service, e.Message)
}

// DetectReportedError inspects a response body for a service-level failure
// indicator. Bodies that are not JSON objects are never treated as errors.
// Recognized shapes:
//
//	{"error": "msg"}             {"error": {"message": "msg"}}
//	{"success": false, ...}      {"status": "error"|"failed"|"fail", ...}
func DetectReportedError(service, body string) error {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil
	}

	reported := func(msg string) error {
		if msg == "" {
			msg = "unspecified error"
		}
		return &ServiceReportedError{Service: service, Message: msg, Body: body}
	}

	switch v := obj["error"].(type) {
	case string:
		if v != "" {
			return reported(v)
		}
	case map[string]any:
		return reported(firstString(v, "message", "msg", "status"))
	case bool:
		if v {
			return reported(firstString(obj, "message", "msg"))
		}
	}

	if ok, present := obj["success"].(bool); present && !ok {
		return reported(firstString(obj, "message", "msg"))
	}

	if status, ok := obj["status"].(string); ok {
		switch strings.ToLower(status) {
		case "error", "failed", "fail":
			return reported(firstString(obj, "message", "msg"))
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
