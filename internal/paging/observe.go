package paging

// Subscribe returns a channel that first receives the current state and then every change, and a cancel func
// that closes it. A slow subscriber only sees the latest pending state.
func (e *Engine[T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)

	e.mu.Lock()
	ch <- e.snapshot()
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()
	e.mu.Unlock()

	cancel := func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish delivers s without blocking, replacing any unread state. Caller holds mu so states go out in order.
func (e *Engine[T]) publish(s State[T]) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
