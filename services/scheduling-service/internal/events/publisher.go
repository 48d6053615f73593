package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	TypeBooked        = "clinic.appointment.booked.v1"
	TypeRescheduled   = "clinic.appointment.rescheduled.v1"
	TypeStatusChanged = "clinic.appointment.status_changed.v1"
	TypeDeleted       = "clinic.appointment.deleted.v1"
)

type Event struct {
	ID          string
	Type        string
	AggregateID string
	OccurredAt  time.Time
	Payload     any
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type appointmentPayload struct {
	AppointmentID      string `json:"appointment_id"`
	Doctor             string `json:"doctor"`
	PatientName        string `json:"patient_name"`
	Type               string `json:"type,omitempty"`
	Status             string `json:"status"`
	StartTime          string `json:"start_time"`
	PreviousStartTime  string `json:"previous_start_time,omitempty"`
	ConflictOverridden bool   `json:"conflict_overridden,omitempty"`
	OccurredAt         string `json:"occurred_at"`
}

// AppointmentEvent builds an event for appt. previous is the start time before a
// reschedule and may be zero.
func AppointmentEvent(eventType string, appt model.Appointment, previous time.Time, overridden bool) Event {
	now := time.Now().UTC()
	p := appointmentPayload{
		AppointmentID:      appt.ID,
		Doctor:             appt.Doctor,
		PatientName:        appt.PatientName,
		Type:               appt.Type,
		Status:             string(appt.Status),
		StartTime:          appt.Date.UTC().Format(time.RFC3339),
		ConflictOverridden: overridden,
		OccurredAt:         now.Format(time.RFC3339),
	}
	if !previous.IsZero() {
		p.PreviousStartTime = previous.UTC().Format(time.RFC3339)
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: appt.ID,
		OccurredAt:  now,
		Payload:     p,
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by aggregate id, so one appointment's events stay ordered.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: kafkax.NewWriter(brokers, topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(evt.AggregateID),
		Value:   body,
		Headers: kafkax.EventHeaders(ctx, evt.ID, evt.Type),
		Time:    evt.OccurredAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
