package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
)

// MaxBodyBytes caps request bodies read by ParseFields.
const MaxBodyBytes = 64 << 10

// ErrMalformedBody is returned when the body cannot be decoded.
var ErrMalformedBody = errors.New("malformed request body")

// Fields holds request parameters from the query string and from a JSON,
// urlencoded or multipart body. Browser forms and API clients post either encoding, so
// handlers read fields by name without caring which one was used.
type Fields struct {
	query url.Values
	body  map[string]string
}

// Get returns the body value for name, falling back to the query string.
func (f Fields) Get(name string) string {
	if v, ok := f.body[name]; ok {
		return v
	}
	return f.query.Get(name)
}

// Query returns only the query-string value for name.
func (f Fields) Query(name string) (string, bool) {
	if !f.query.Has(name) {
		return "", false
	}
	return f.query.Get(name), true
}

// Body returns only the body value for name.
func (f Fields) Body(name string) (string, bool) {
	v, ok := f.body[name]
	return v, ok
}

// ParseFields reads the request body once. JSON scalars are converted to
// their string form; nested objects and arrays are ignored.
func ParseFields(w http.ResponseWriter, r *http.Request) (Fields, error) {
	f := Fields{query: r.URL.Query(), body: map[string]string{}}
	if r.Body == nil || r.Body == http.NoBody {
		return f, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return f, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		f.addValues(r.PostForm)
		return f, nil
	case "multipart/form-data":
		// File parts are dropped; only the text values are kept.
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return f, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		f.addValues(r.MultipartForm.Value)
		return f, nil
	default:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return f, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return f, nil
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return f, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		for k, v := range m {
			switch t := v.(type) {
			case string:
				f.body[k] = t
			case json.Number:
				f.body[k] = t.String()
			case bool:
				f.body[k] = strconv.FormatBool(t)
			}
		}
		return f, nil
	}
}

func (f Fields) addValues(vs map[string][]string) {
	for k, v := range vs {
		if len(v) > 0 {
			f.body[k] = v[0]
		}
	}
}

// FieldsMiddleware parses request fields up front and stores them in the
// context so rate-limit key extractors and handlers share one read of the body.
func FieldsMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			f, err := ParseFields(w, r)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
				return
			}
			ctx := contextWithFields(r.Context(), f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FieldsFromRequest returns the fields stored by FieldsMiddleware, or only the
// query string when the middleware did not run.
func FieldsFromRequest(r *http.Request) Fields {
	if f, ok := r.Context().Value(CtxKeyFields).(Fields); ok {
		return f
	}
	return Fields{query: r.URL.Query()}
}
