package models

import (
	"strconv"
	"strings"
)

// Actor identifies the person behind an incoming interaction. It is
// what the front-end hands to the core; only ID is guaranteed.
type Actor struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (a Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Display prefers the @username and falls back to the full name or ID.
func (a Actor) Display() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	if name := a.FullName(); name != "" {
		return name
	}
	return "id " + strconv.FormatInt(a.ID, 10)
}
