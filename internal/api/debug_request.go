package api

import (
	"bytes"
	"io"
	"net/http"
)

// traceBodyLimit caps how much of a request body is copied into trace logs.
const traceBodyLimit = 16 << 10

// captureBody returns up to limit bytes of the request body for logging
// and rewinds r.Body so the handler still sees the whole payload.
// truncated is set when the body is longer than limit.
func captureBody(r *http.Request, limit int64) (head []byte, truncated bool, err error) {
	head, err = io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, false, err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	if int64(len(head)) > limit {
		return head[:limit], true, nil
	}
	return head, false, nil
}
