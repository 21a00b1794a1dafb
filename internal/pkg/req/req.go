/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes small JSON bodies (login, ban lists, PoW proofs) with strict field checking
and a hard size cap, reporting failures as errs.CustomError values ready for resp.RespondError.
*/
package req

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"gridroom/internal/pkg/errs"
)

// MaxJSONBodySize caps every JSON request body. None of the API payloads come close.
const MaxJSONBodySize int64 = 64 << 10 // 64 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrInvalidParams)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// ClientIP returns the caller's address without the port. chi's RealIP middleware has
// already rewritten RemoteAddr from X-Forwarded-For / X-Real-IP when present.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}

	return ip
}
