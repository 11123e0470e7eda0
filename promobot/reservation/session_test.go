package reservation

import (
	"strings"
	"testing"
)

func TestNameIsTruncatedToLimit(t *testing.T) {
	s := &session{Step: StepName}
	long := strings.Repeat("й", maxNameLen+15)
	ok, _ := s.apply(long)
	if !ok {
		t.Fatal("long name rejected instead of truncated")
	}
	if got := len([]rune(s.Draft.Name)); got != maxNameLen {
		t.Errorf("name length = %d runes, want %d", got, maxNameLen)
	}
}

func TestEmptyNameRejected(t *testing.T) {
	s := &session{Step: StepName}
	if ok, _ := s.apply("   "); ok {
		t.Error("blank name accepted")
	}
	if s.Step != StepName {
		t.Errorf("step advanced to %v on rejection", s.Step)
	}
}

func TestNoteIsTruncatedToLimit(t *testing.T) {
	s := &session{Step: StepNote}
	ok, done := s.apply(strings.Repeat("a", maxNoteLen+50))
	if !ok || !done {
		t.Fatalf("note apply = (%v, %v), want accepted and done", ok, done)
	}
	if got := len([]rune(s.Draft.Note)); got != maxNoteLen {
		t.Errorf("note length = %d, want %d", got, maxNoteLen)
	}
}
