package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Response is the transport-neutral response a handler returns.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// JSON builds an application/json response.
func JSON(status int, value any) (*Response, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:  status,
		Headers: map[string][]string{"content-type": {"application/json; charset=utf-8"}},
		Body:    body,
	}, nil
}

// Error is returned by handlers to answer with a coded client error.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func errorResponse(status int, code, message, requestID string, headers map[string][]string) Response {
	body, _ := json.Marshal(errorBody{Error: errorDetail{Code: code, Message: message, RequestID: requestID}})
	out := Response{
		Status:  status,
		Headers: map[string][]string{"content-type": {"application/json; charset=utf-8"}},
		Body:    body,
	}
	for k, v := range headers {
		out.Headers[k] = v
	}
	return out
}

func normalizeResponse(in *Response) Response {
	if in == nil {
		return errorResponse(http.StatusInternalServerError, codeInternal, "internal error", "", nil)
	}
	out := *in
	if out.Status == 0 {
		out.Status = http.StatusOK
	}
	headers := make(map[string][]string, len(out.Headers))
	for k, v := range out.Headers {
		headers[strings.ToLower(strings.TrimSpace(k))] = append([]string(nil), v...)
	}
	out.Headers = headers
	out.Body = append([]byte(nil), out.Body...)
	return out
}
