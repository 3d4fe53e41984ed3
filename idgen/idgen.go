// Package idgen generates identifiers for health reports, mining passes and
// journal rows.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 v7 UUIDs. They sort by creation
// time, which keeps journal listings in insertion order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every id of gen ("hr_", "pass_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the generator used when a component is given none.
var Default Generator = UUIDv7()

// New produces an id with Default.
func New() string {
	return Default()
}

// Time extracts the creation time of a v7 id, prefixed or not.
func Time(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("idgen: %w", err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("idgen: %s is not a v7 uuid", id)
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
