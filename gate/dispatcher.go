package gate

import (
	"reflect"
	"sync"

	"qq-farm-runtime/logger"
)

// NotifyHandler receives one gate event: the notify type name and its
// encoded payload.
type NotifyHandler func(messageType string, payload []byte)

// Wildcard subscribes a handler to every notify type.
const Wildcard = "*"

// Dispatcher fans gate events out to subscribed handlers. Handlers run
// on the session's receive goroutine; panics are contained so one bad
// handler cannot kill the connection.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]NotifyHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]NotifyHandler)}
}

// On registers a handler for messageType, or for all types when
// messageType is Wildcard.
func (d *Dispatcher) On(messageType string, h NotifyHandler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers[messageType] = append(d.handlers[messageType], h)
	d.mu.Unlock()
}

// Off unregisters one handler from messageType, leaving the rest of
// the type's handlers in place. Identity goes by the handler's code
// pointer, so pass the same value given to On.
func (d *Dispatcher) Off(messageType string, h NotifyHandler) {
	if h == nil {
		return
	}
	target := reflect.ValueOf(h).Pointer()
	d.mu.Lock()
	kept := d.handlers[messageType][:0]
	for _, existing := range d.handlers[messageType] {
		if reflect.ValueOf(existing).Pointer() != target {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, messageType)
	} else {
		d.handlers[messageType] = kept
	}
	d.mu.Unlock()
}

// Emit delivers one event to the type's handlers plus the wildcard
// handlers. The handler list is copied under lock and invoked outside
// it so handlers may re-subscribe.
func (d *Dispatcher) Emit(messageType string, payload []byte) {
	d.mu.Lock()
	targets := make([]NotifyHandler, 0, len(d.handlers[messageType])+len(d.handlers[Wildcard]))
	targets = append(targets, d.handlers[messageType]...)
	if messageType != Wildcard {
		targets = append(targets, d.handlers[Wildcard]...)
	}
	d.mu.Unlock()

	for _, h := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warnw("notify handler panicked",
						"message_type", messageType,
						"panic", r,
					)
				}
			}()
			h(messageType, payload)
		}()
	}
}

// Clear drops all subscriptions. Called when the session closes.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.handlers = make(map[string][]NotifyHandler)
	d.mu.Unlock()
}
