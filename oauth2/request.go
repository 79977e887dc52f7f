package oauth2

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Request is the part of an inbound HTTP request the protocol engine reads.
type Request struct {
	Method        string
	Query         url.Values
	Form          url.Values // request body only, never merged with Query
	Authorization string
	Cookie        string // raw session cookie value, empty when absent
	RemoteAddr    string
}

// Param returns the named form value, falling back to the query string.
func (r *Request) Param(name string) string {
	if v := r.Form.Get(name); v != "" {
		return v
	}
	return r.Query.Get(name)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func (r *Request) BearerToken() string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Authorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Response is what the protocol engine asks the transport to send.
type Response struct {
	Status          int
	Location        string
	ContentType     string
	WWWAuthenticate string
	Body            []byte

	// Cookie is the signed session cookie value to emit. ClearCookie asks
	// the transport to expire the browser's cookie instead.
	Cookie      string
	ClearCookie bool
}

func Redirect(status int, location string) *Response {
	return &Response{Status: status, Location: location}
}

func Text(status int, body string) *Response {
	return &Response{Status: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

// JSON encodes v as the response body.
func JSON(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, ContentType: "application/json", Body: body}, nil
}

// Error builds an RFC 6749 JSON error response.
func Error(status int, code ErrorCode, description string) *Response {
	body, _ := json.Marshal(ErrorResponse{Error: code, Description: description})
	return &Response{Status: status, ContentType: "application/json", Body: body}
}

// AppendQuery adds params to uri, keeping any query it already carries.
func AppendQuery(uri string, params url.Values) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
