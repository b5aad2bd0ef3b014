package api

import (
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"

	"github.com/shohag/webhookrouter/internal/models"
)

const (
	jsonType = "application/json"
	formType = "application/x-www-form-urlencoded"
)

type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string { return e.msg }

func (e *badRequestError) Unwrap() error { return e.err }

// decodeBody reads a JSON or form-encoded webhook body. Form bodies become
// an object holding the first value of each field.
func decodeBody(r *http.Request) (any, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case jsonType:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		content, err := models.DecodeJSON(data)
		if err != nil {
			return nil, &badRequestError{msg: "invalid JSON body: " + err.Error(), err: err}
		}
		return content, nil
	case formType:
		if err := r.ParseForm(); err != nil {
			return nil, &badRequestError{msg: "invalid form body: " + err.Error(), err: err}
		}
		content := make(map[string]any, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				content[key] = values[0]
			}
		}
		return content, nil
	default:
		return nil, &badRequestError{msg: fmt.Sprintf("Content-Type must be '%s' or '%s'", jsonType, formType)}
	}
}

func requestMeta(r *http.Request) map[string]any {
	headers := make(map[string]any, len(r.Header)+1)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	return map[string]any{
		"headers": headers,
		"address": remoteAddress(r),
	}
}

func remoteAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
