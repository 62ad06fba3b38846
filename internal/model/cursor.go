package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a position in a thread's log, expressed in unix seconds.
// "Since C" means strictly after C. The zero value reads from the beginning.
type Cursor int64

// CursorAt returns the cursor for t.
func CursorAt(t time.Time) Cursor {
	return Cursor(t.Unix())
}

// ParseCursor parses a decimal cursor. An empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cursor %q is not an integer", ErrInvalidArgument, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: cursor must not be negative", ErrInvalidArgument)
	}
	return Cursor(n), nil
}

// Time returns the cursor as a UTC time.
func (c Cursor) Time() time.Time {
	return time.Unix(int64(c), 0).UTC()
}

// Advance returns the later of c and ts. Cursors never move backwards.
func (c Cursor) Advance(ts int64) Cursor {
	if Cursor(ts) > c {
		return Cursor(ts)
	}
	return c
}

// String returns the decimal form of the cursor.
func (c Cursor) String() string {
	return strconv.FormatInt(int64(c), 10)
}
