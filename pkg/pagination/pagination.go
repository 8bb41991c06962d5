// Package pagination implements keyset paging over (created_at, id) ordered
// listings. Cursors are opaque, URL safe and stable under concurrent inserts.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is what a listing endpoint accepts from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// PageSize clamps Limit into [1, MaxLimit], defaulting to DefaultLimit.
func (p Params) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	}
	return p.Limit
}

// Keyset decodes Cursor. An empty cursor yields nil, meaning the first page.
func (p Params) Keyset() (*Keyset, error) {
	return ParseKeyset(p.Cursor)
}

// Keyset identifies the last row of a page in newest-first order.
type Keyset struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (k Keyset) String() string {
	raw := strconv.FormatInt(k.CreatedAt.UnixNano(), 10) + "." + k.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func ParseKeyset(value string) (*Keyset, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	nanos, rawID, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Keyset{CreatedAt: time.Unix(0, n), ID: id}, nil
}

// Split trims rows fetched with a limit of size+1 down to size and returns the
// cursor for the next page, or "" when rows fit on this page.
func Split[T any](rows []T, size int, keyOf func(T) Keyset) ([]T, string) {
	if size <= 0 || len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, keyOf(rows[size-1]).String()
}
