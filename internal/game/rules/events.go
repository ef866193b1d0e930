package rules

import "sync"

// EventType names something that happened during a game.
type EventType string

const (
	EventTurnBegin     EventType = "TURN_BEGIN"
	EventClueGiven     EventType = "CLUE_GIVEN"
	EventCardPlayed    EventType = "CARD_PLAYED"
	EventCardMisplayed EventType = "CARD_MISPLAYED"
	EventCardDiscarded EventType = "CARD_DISCARDED"
	EventCardDrawn     EventType = "CARD_DRAWN"
	EventStrike        EventType = "STRIKE"
	EventStackComplete EventType = "STACK_COMPLETE"
	EventFinalRound    EventType = "FINAL_ROUND"
	EventGameOver      EventType = "GAME_OVER"

	// EventAny subscribes to every event type.
	EventAny EventType = "*"
)

// Event is published by the engine after it has applied a change.
// Fields that do not apply to the event type hold -1.
type Event struct {
	Type   EventType
	Turn   int
	Player int // seat of the acting player
	Target int // seat that received a clue
	Order  int // deck order of the card involved
	Amount int // clues touched, strikes, end turn or score
}

type subscription struct {
	handle int
	fn     func(Event)
}

// EventBus delivers events synchronously on the publishing goroutine.
// Subscribers must not publish on the same bus.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[EventType][]subscription
	nextID int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventType][]subscription)}
}

// Subscribe registers fn for eventType and returns a handle for
// Unsubscribe. A nil fn is ignored and yields -1.
func (bus *EventBus) Subscribe(eventType EventType, fn func(Event)) int {
	if fn == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextID
	bus.nextID++
	bus.subs[eventType] = append(bus.subs[eventType], subscription{handle: handle, fn: fn})
	return handle
}

// Unsubscribe removes the subscription behind handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for eventType, subs := range bus.subs {
		for i, s := range subs {
			if s.handle == handle {
				bus.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers evt to the subscribers of its type, then to EventAny.
func (bus *EventBus) Publish(evt Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	for _, s := range bus.subs[evt.Type] {
		s.fn(evt)
	}
	for _, s := range bus.subs[EventAny] {
		s.fn(evt)
	}
}

// NewEvent returns an event with no card, target or amount.
func NewEvent(eventType EventType, turn, player int) Event {
	return Event{Type: eventType, Turn: turn, Player: player, Target: -1, Order: -1, Amount: -1}
}

// NewCardEvent returns an event about the card at order.
func NewCardEvent(eventType EventType, turn, player, order int) Event {
	evt := NewEvent(eventType, turn, player)
	evt.Order = order
	return evt
}

// NewEventWithAmount returns an event carrying a count.
func NewEventWithAmount(eventType EventType, turn, player, amount int) Event {
	evt := NewEvent(eventType, turn, player)
	evt.Amount = amount
	return evt
}
