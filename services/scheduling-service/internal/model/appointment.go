package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the four known statuses, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Blocks reports whether an appointment in this status occupies the doctor's time.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

// CanTransition reports whether s may move to next. Completed and cancelled are terminal.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCompleted || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

type Appointment struct {
	ID           string
	PatientName  string
	PatientPhone string
	Doctor       string
	Date         time.Time
	Type         string
	Status       Status
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
