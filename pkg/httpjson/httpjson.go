// Package httpjson holds small, dependency-free helpers for classifying
// and decoding upstream HTTP bodies by content-type, shared by the
// dispatcher and the facilitator client.
package httpjson

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// DecodeByContentType turns a raw response body into a structured value
// based on its declared content-type: JSON is parsed, HTML/text is wrapped
// with a type marker, anything else is base64-encoded.
func DecodeByContentType(contentType string, body []byte) interface{} {
	ct := strings.ToLower(contentType)

	switch {
	case strings.Contains(ct, "application/json"):
		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
		return string(body)
	case strings.Contains(ct, "text/html"):
		return map[string]interface{}{"type": "website", "content": string(body)}
	case strings.Contains(ct, "text/"):
		return string(body)
	case strings.Contains(ct, "image/"):
		return map[string]interface{}{"type": "image", "contentType": ct, "data": base64.StdEncoding.EncodeToString(body)}
	default:
		if len(body) == 0 {
			return nil
		}
		return base64.StdEncoding.EncodeToString(body)
	}
}

// StatusMessage maps a non-2xx upstream status to a human-readable message.
func StatusMessage(status int) string {
	switch status {
	case 404:
		return "upstream endpoint not found"
	case 405:
		return "upstream method not allowed"
	case 401, 403:
		return "upstream rejected the request (unauthorized)"
	default:
		if status >= 500 {
			return "upstream server error"
		}
		return "upstream request failed"
	}
}
