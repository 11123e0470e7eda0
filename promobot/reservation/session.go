package reservation

import (
	"strconv"
	"strings"
	"time"
)

// Step is one stage of the reservation intake wizard. Steps advance
// strictly linearly; an input that fails validation re-prompts the
// same step.
type Step int

const (
	StepName Step = iota
	StepPhone
	StepDate
	StepTime
	StepCovers
	StepNote
)

func (s Step) String() string {
	switch s {
	case StepName:
		return "name"
	case StepPhone:
		return "phone"
	case StepDate:
		return "date"
	case StepTime:
		return "time"
	case StepCovers:
		return "covers"
	case StepNote:
		return "note"
	default:
		return "unknown"
	}
}

const (
	maxNameLen     = 60
	maxNoteLen     = 200
	minPhoneLen    = 7
	noteNoneMarker = "-"
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
)

type draft struct {
	Name   string
	Phone  string
	Date   string
	Time   string
	Covers int
	Note   string
}

type session struct {
	Step      Step
	Draft     draft
	StartedAt time.Time
}

// apply validates input for the session's current step and, on
// success, stores the value and advances. It reports whether the input
// was accepted and whether the wizard is complete.
func (s *session) apply(input string) (ok bool, done bool) {
	text := strings.TrimSpace(input)
	switch s.Step {
	case StepName:
		if text == "" {
			return false, false
		}
		s.Draft.Name = truncate(text, maxNameLen)
	case StepPhone:
		if len(text) < minPhoneLen {
			return false, false
		}
		s.Draft.Phone = text
	case StepDate:
		if _, err := time.Parse(dateLayout, text); err != nil {
			return false, false
		}
		s.Draft.Date = text
	case StepTime:
		if _, err := time.Parse(timeLayout, text); err != nil {
			return false, false
		}
		s.Draft.Time = text
	case StepCovers:
		n, err := strconv.Atoi(text)
		if err != nil {
			return false, false
		}
		if n < 1 {
			n = 1
		}
		s.Draft.Covers = n
	case StepNote:
		if text == noteNoneMarker {
			s.Draft.Note = ""
		} else {
			s.Draft.Note = truncate(text, maxNoteLen)
		}
		return true, true
	}
	s.Step++
	return true, false
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
