package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPageToken reports a page token that cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// timeCursor is the wire shape of a page token for listings ordered by a
// timestamp with a document ID tiebreaker.
type timeCursor struct {
	After string `json:"after"`
	ID    string `json:"id"`
}

// EncodeTimeCursor serialises a (timestamp, document ID) pair into an opaque
// base64 URL-safe page token.
func EncodeTimeCursor(ts time.Time, docID string) string {
	data, err := json.Marshal(timeCursor{
		After: ts.UTC().Format(time.RFC3339Nano),
		ID:    docID,
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeTimeCursor parses a token produced by EncodeTimeCursor back into its
// timestamp and document ID components.
func DecodeTimeCursor(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor timeCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.After == "" || cursor.ID == "" {
		return time.Time{}, "", ErrInvalidPageToken
	}
	ts, err := time.Parse(time.RFC3339Nano, cursor.After)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return ts, cursor.ID, nil
}
