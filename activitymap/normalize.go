// Package activitymap flattens identity activity events into a transport
// agnostic audit record and ships them through a logger.
package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
)

const (
	// MetadataKeyActorType holds identity.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus holds the state before a lifecycle change
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus holds the state after a lifecycle change
	MetadataKeyToStatus = "to_status"
)

const (
	defaultChannel    = "identity"
	defaultObjectType = "account"
	defaultActorID    = identity.ActorTypeSystem
)

// Record is the flattened audit entry
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization
type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
}

// WithChannel overrides the channel, "identity" by default
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType overrides the object type, "account" by default
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor used when neither actor nor account id is set
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts event into a Record. The event metadata is copied,
// never mutated.
func Normalize(event identity.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.AccountID),
			o.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.AccountID),
		Channel:    o.channel,
		Metadata:   metadataOf(event),
		OccurredAt: occurredAt,
	}
}

// LogSink returns an identity.ActivitySink that logs every event as a
// normalized record.
func LogSink(logger identity.Logger, opts ...Option) identity.ActivitySink {
	if logger == nil {
		logger = identity.NopLogger()
	}
	return identity.ActivitySinkFunc(func(_ context.Context, event identity.ActivityEvent) error {
		rec := Normalize(event, opts...)
		logger.Info(rec.Verb,
			"actor_id", rec.ActorID,
			"object_type", rec.ObjectType,
			"object_id", rec.ObjectID,
			"channel", rec.Channel,
			"metadata", rec.Metadata,
			"occurred_at", rec.OccurredAt,
		)
		return nil
	})
}

func metadataOf(event identity.ActivityEvent) map[string]any {
	var md map[string]any
	set := func(k string, v any) {
		if md == nil {
			md = make(map[string]any, len(event.Metadata)+3)
		}
		md[k] = v
	}

	for k, v := range event.Metadata {
		set(k, v)
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := md[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}
	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, event.FromStatus)
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, event.ToStatus)
	}
	return md
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
