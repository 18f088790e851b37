package ids

import "github.com/segmentio/ksuid"

// New returns a time-ordered, URL-safe identifier used as primary key for every table.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether s has the shape of an identifier produced by New.
func Valid(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}
