package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// ResponseBuffer captures what a handler writes so the caller can inspect
// it before deciding what reaches the client.
type ResponseBuffer struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func NewResponseBuffer() *ResponseBuffer {
	return &ResponseBuffer{}
}

// Status is 200 when the handler wrote a body without an explicit status.
func (resp *ResponseBuffer) Status() int {
	if resp.status == 0 && resp.body.Len() > 0 {
		return http.StatusOK
	}
	return resp.status
}

func (resp *ResponseBuffer) Header() http.Header {
	if resp.header == nil {
		resp.header = http.Header{}
	}
	return resp.header
}

func (resp *ResponseBuffer) Body() []byte {
	return resp.body.Bytes()
}

func (resp *ResponseBuffer) DecodeJSON(v any) error {
	return json.Unmarshal(resp.body.Bytes(), v)
}

func (resp *ResponseBuffer) Write(body []byte) (int, error) {
	return resp.body.Write(body)
}

func (resp *ResponseBuffer) WriteHeader(statusCode int) {
	if resp.status == 0 {
		resp.status = statusCode
	}
}

// Flush copies the captured headers, status and body to w.
func (resp *ResponseBuffer) Flush(w http.ResponseWriter) error {
	header := w.Header()
	for key, value := range resp.header {
		header[key] = value
	}
	if status := resp.Status(); status != 0 {
		w.WriteHeader(status)
	}
	_, err := w.Write(resp.body.Bytes())
	return err
}
