package oidc

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/giantswarm/jwt-oidc/server"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

var errUnsupportedContentType = server.ErrUnsupportedContentType("Content-Type must be application/json or application/x-www-form-urlencoded")

// readParams reads a JSON object or form encoded body into url.Values. Only
// string members of a JSON object are kept.
func (h *Handler) readParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errUnsupportedContentType
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)

	switch mediaType {
	case contentTypeJSON:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, bodyError(err)
		}
		values := url.Values{}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				values.Set(k, s)
			}
		}
		return values, nil

	case contentTypeForm:
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		return r.PostForm, nil
	}
	return nil, errUnsupportedContentType
}

// decodeJSON reads a JSON body into dst.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return server.ErrInvalidRequest("request body too large").Wrap(err)
	case errors.Is(err, io.EOF):
		return server.ErrInvalidRequest("request body is empty").Wrap(err)
	}
	return server.ErrInvalidRequest("malformed request body").Wrap(err)
}

// clientCredentials resolves the client id and secret. HTTP Basic wins
// over body fields; its parts are form-urlencoded (RFC 6749 section 2.3.1).
func clientCredentials(r *http.Request, params url.Values) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return unescape(id), unescape(secret)
	}
	return params.Get("client_id"), params.Get("client_secret")
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
