package accessory

import (
	"fmt"
	"sort"
	"sync"
)

// slot identifies which kind of report a topic carries.
type slot int

const (
	slotStatus slot = iota
	slotState
	slotActivity
)

func (s slot) String() string {
	switch s {
	case slotStatus:
		return "status"
	case slotState:
		return "state"
	case slotActivity:
		return "activity"
	default:
		return "unknown"
	}
}

// Handler processes one inbound payload.
type Handler func(payload []byte) error

type route struct {
	slot    slot
	handler Handler
}

// HandlerTable maps exact topic names to handlers.
// It is built once and only read afterwards.
type HandlerTable map[string]route

// newHandlerTable builds the table for a profile. Unconfigured topics are
// omitted. If two slots share a topic, the later slot (status, state,
// activity order) owns it.
func newHandlerTable(p Profile, status, state, activity Handler) HandlerTable {
	table := make(HandlerTable)

	add := func(topic string, s slot, h Handler) {
		if topic == "" {
			return
		}
		table[topic] = route{slot: s, handler: h}
	}

	add(p.StatusGet, slotStatus, status)
	add(p.StateGet, slotState, state)
	add(p.ActivityTopic, slotActivity, activity)

	return table
}

// Topics returns the subscribed topics in sorted order.
func (t HandlerTable) Topics() []string {
	topics := make([]string, 0, len(t))
	for topic := range t {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// router dispatches inbound messages for one accessory, one at a time.
type router struct {
	mu    sync.Mutex
	table HandlerTable
}

// dispatch runs the handler registered for topic.
// Unknown topics are ignored and return (false, nil). A panicking handler
// is recovered and reported as ErrHandlerPanic.
func (r *router) dispatch(topic string, payload []byte) (handled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.table[topic]
	if !ok {
		return false, nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s handler: %v", ErrHandlerPanic, rt.slot, p)
		}
	}()

	handled = true
	return handled, rt.handler(payload)
}
