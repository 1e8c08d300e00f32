package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/dtokit/internal/apperr"
)

// requestPayload is everything an HTTP request carries: the query string
// merged with a JSON or form body. Body values win over query values.
type requestPayload map[string]any

// All returns the merged input.
func (p requestPayload) All() map[string]any {
	return p
}

// readPayload collects the request input. Repeated keys and keys ending in
// "[]" become lists. A JSON body must be an object; numbers keep their text
// as json.Number.
func readPayload(r *http.Request) (requestPayload, error) {
	p := requestPayload{}
	mergeValues(p, r.URL.Query())

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		mergeValues(p, r.PostForm)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		mergeValues(p, url.Values(r.MultipartForm.Value))
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read body", apperr.ErrInvalidInput)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return p, nil
		}
		obj, err := decodeObject(body)
		if err != nil {
			return nil, err
		}
		for k, v := range obj {
			p[k] = v
		}
	}
	return p, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: JSON body must be an object", apperr.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: invalid JSON body", apperr.ErrInvalidInput)
	}
	return obj, nil
}

func mergeValues(p requestPayload, values url.Values) {
	for key, vals := range values {
		name, list := strings.CutSuffix(key, "[]")
		if name == "" || len(vals) == 0 {
			continue
		}
		if !list && len(vals) == 1 {
			p[name] = vals[0]
			continue
		}
		items := make([]any, len(vals))
		for i, v := range vals {
			items[i] = v
		}
		p[name] = items
	}
}
