package observability

import "unicode"

const defaultFieldLimit = 256

// sanitizeString drops control characters and bounds the length so values
// coming off the wire cannot corrupt structured log output.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}

	kept := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return string(kept)
}

// SanitizeRoute cleans a matched route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID bounds user identifiers before they reach log fields.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, 64)
}
