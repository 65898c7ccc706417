package network

import (
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Response is the normalized outcome handed back to script code
type Response struct {
	OK         bool
	Status     int
	StatusText string
	Headers    map[string]string
	// Body is a decoded JSON value, a string, or []byte for binary requests
	Body  any
	Error string
}

func failed(msg string) *Response {
	return &Response{Headers: map[string]string{}, Error: msg}
}

func normalize(raw *resty.Response, binary bool) *Response {
	status := raw.StatusCode()
	headers := make(map[string]string, len(raw.Header()))
	for k, v := range raw.Header() {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	out := &Response{
		OK:         status >= 200 && status < 300,
		Status:     status,
		StatusText: http.StatusText(status),
		Headers:    headers,
	}

	body := raw.Body()
	if binary {
		out.Body = body
		return out
	}
	out.Body = DecodeBody(body, headers["content-type"])
	return out
}

// Map renders the response in the shape scripts expect; both naming
// conventions in circulation are populated.
func (r *Response) Map() map[string]any {
	m := map[string]any{
		"ok":            r.OK,
		"status":        r.Status,
		"statusCode":    r.Status,
		"statusText":    r.StatusText,
		"statusMessage": r.StatusText,
		"headers":       r.Headers,
		"body":          r.Body,
		"data":          r.Body,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func (r *Response) outcome() string {
	switch {
	case r.Error != "":
		return "error"
	case r.OK:
		return "ok"
	default:
		return "status"
	}
}
