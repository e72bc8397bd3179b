package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

type bodyKey struct{}

// cappedBody remembers whether a read ran into the MaxBytesReader cap.
type cappedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		b.exceeded = true
	}
	return n, err
}

// LimitBody caps every request body at limit bytes before any later middleware parses it.
// A declared Content-Length over the cap is refused with 413 without reading the body;
// chunked bodies are cut off at the cap.
func LimitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				slog.Warn("request_too_large", "path", r.URL.Path, "content_length", r.ContentLength, "limit", limit)
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				body := &cappedBody{ReadCloser: http.MaxBytesReader(w, r.Body, limit)}
				r = r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
				r.Body = body
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyTooLarge reports whether r's body was cut off by LimitBody.
func BodyTooLarge(r *http.Request) bool {
	b, ok := r.Context().Value(bodyKey{}).(*cappedBody)
	return ok && b.exceeded
}
