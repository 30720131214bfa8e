package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is the fallback number of items returned when the
	// client omits page_size.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps page_size to keep listing queries bounded.
	DefaultMaxPageSize = 100
)

// ErrInvalidPageSize reports a page_size value that is not a positive integer.
var ErrInvalidPageSize = errors.New("page_size must be a positive integer")

// Params holds the pagination values extracted from a request. The token is
// treated as opaque here; repositories decode it.
type Params struct {
	PageSize  int
	PageToken string
}

// Options control defaults and limits applied while parsing.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// FromRequest parses page_size and page_token from the request query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes query values and returns normalised pagination parameters.
// page_size must be a positive integer when present and is clamped to the
// configured maximum. page_token is trimmed and passed through untouched.
func Parse(values url.Values, opts Options) (Params, error) {
	defaultSize := opts.DefaultPageSize
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}

	params := Params{PageSize: defaultSize}
	if values == nil {
		return params, nil
	}

	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, ErrInvalidPageSize
		}
		if size > maxSize {
			size = maxSize
		}
		params.PageSize = size
	}

	params.PageToken = strings.TrimSpace(values.Get("page_token"))
	return params, nil
}
