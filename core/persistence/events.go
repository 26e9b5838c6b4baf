package persistence

import (
	"context"
	"time"

	"github.com/asaidimu/go-repodb/core/schema"
)

// PersistenceEventType is the topic a PersistenceEvent is published on.
type PersistenceEventType string

const (
	DocumentCreateStart     PersistenceEventType = "document:create:start"
	DocumentCreateSuccess   PersistenceEventType = "document:create:success"
	DocumentCreateFailed    PersistenceEventType = "document:create:failed"
	DocumentReadStart       PersistenceEventType = "document:read:start"
	DocumentReadSuccess     PersistenceEventType = "document:read:success"
	DocumentReadFailed      PersistenceEventType = "document:read:failed"
	DocumentUpdateStart     PersistenceEventType = "document:update:start"
	DocumentUpdateSuccess   PersistenceEventType = "document:update:success"
	DocumentUpdateFailed    PersistenceEventType = "document:update:failed"
	DocumentDeleteStart     PersistenceEventType = "document:delete:start"
	DocumentDeleteSuccess   PersistenceEventType = "document:delete:success"
	DocumentDeleteFailed    PersistenceEventType = "document:delete:failed"
	CollectionCreateSuccess PersistenceEventType = "collection:create:success"
	CollectionChanged       PersistenceEventType = "collection:changed"
	WriteConflict           PersistenceEventType = "write:conflict"
	SubscriptionRegister    PersistenceEventType = "subscription:register"
	SubscriptionUnregister  PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent describes one step of a store operation.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`
	Timestamp  int64                `json:"timestamp"`
	Operation  string               `json:"operation"`
	Collection *string              `json:"collection,omitempty"`
	Input      any                  `json:"input,omitempty"`
	Output     any                  `json:"output,omitempty"`
	Error      *string              `json:"error,omitempty"`
	Issues     []schema.Issue       `json:"issues,omitempty"`
	Duration   *int64               `json:"duration,omitempty"`
	Context    map[string]any       `json:"context,omitempty"`
}

type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes a registered telemetry subscription.
type SubscriptionInfo struct {
	Id          *string              `json:"id,omitempty"`
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions defines options for registering a telemetry
// subscription.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

func (s *Store) emitEvent(event PersistenceEvent) {
	if s.bus != nil {
		s.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success and failure
// events.
func (s *Store) withEventEmission(
	operation string,
	collection string,
	startEventType PersistenceEventType,
	successEventType PersistenceEventType,
	failedEventType PersistenceEventType,
	input any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()
	s.emitEvent(createEvent(startEventType, operation, collection, input, nil, nil, nil, startTime))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		s.emitEvent(createEvent(failedEventType, operation, collection, input, nil, &errStr, issuesOf(err), startTime))
		return nil, err
	}

	s.emitEvent(createEvent(successEventType, operation, collection, input, result, nil, nil, startTime))
	return result, nil
}

// RegisterSubscription registers a callback for a persistence event. It
// returns an id that can be used to unregister the subscription later.
func (s *Store) RegisterSubscription(options RegisterSubscriptionOptions) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	unsubscribe := s.bus.Subscribe(string(options.Event), options.Callback)
	id := newID()

	s.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		Unsubscribe: unsubscribe,
	}
	s.emitEvent(createEvent(SubscriptionRegister, "register_subscription", "", map[string]any{
		"event": options.Event,
		"label": options.Label,
	}, map[string]any{"subscriptionId": id}, nil, nil, time.Now()))
	return id
}

// UnregisterSubscription removes a subscription by its id.
func (s *Store) UnregisterSubscription(id string) {
	s.subMu.Lock()
	info, ok := s.subscriptions[id]
	if ok {
		delete(s.subscriptions, id)
	}
	s.subMu.Unlock()
	if !ok {
		return
	}

	info.Unsubscribe()
	s.emitEvent(createEvent(SubscriptionUnregister, "unregister_subscription", "", map[string]any{
		"subscriptionId": id,
	}, nil, nil, nil, time.Now()))
}

// Subscriptions returns the active telemetry subscriptions.
func (s *Store) Subscriptions() []SubscriptionInfo {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
