package kit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPError carries a status code through an Endpoint.
type HTTPError struct {
	Status int
	Err    error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }

// NotFound wraps err as a 404.
func NotFound(err error) error { return &HTTPError{Status: http.StatusNotFound, Err: err} }

// HTTPHandler serves endpoint. decode builds the request from r; a nil
// decode passes a nil request.
func HTTPHandler(endpoint Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req any
		if decode != nil {
			var err error
			if req, err = decode(r); err != nil {
				WriteError(w, http.StatusBadRequest, err)
				return
			}
		}
		ctx := WithTransport(r.Context(), "http")
		if id := requestID(r); id != "" {
			ctx = WithRequestID(ctx, id)
		}
		resp, err := endpoint(ctx, req)
		if err != nil {
			status := http.StatusInternalServerError
			var he *HTTPError
			if errors.As(err, &he) {
				status = he.Status
			}
			WriteError(w, status, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// requestID prefers the client's X-Request-Id, then the id chi's RequestID
// middleware stored on the context.
func requestID(r *http.Request) string {
	if id := r.Header.Get(middleware.RequestIDHeader); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": ...}.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
