package registry

// Subscribe returns a channel of future registry events and a cancel func that closes it.
//
// Each subscriber has a one-slot buffer; a slow subscriber only ever sees the latest pending event.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	return r.subscribe(nil)
}

// ObserveActive is like [Registry.Subscribe] but first delivers the current state as an [EventActivated].
func (r *Registry) ObserveActive() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	initial := Event{Kind: EventActivated}
	if r.activeID != "" {
		if profile, err := r.store.Get(r.activeID); err == nil {
			initial.Active = profile
		}
	}
	return r.subscribe(&initial)
}

func (r *Registry) subscribe(initial *Event) (<-chan Event, func()) {
	ch := make(chan Event, 1)
	if initial != nil {
		ch <- *initial
	}

	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subsMu.Unlock()

	cancel := func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish delivers ev to every subscriber without blocking, replacing any unread event. Caller holds mu.
func (r *Registry) publish(ev Event) {
	r.revision++

	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	r.logger.Debug("publishing event", "kind", ev.Kind, "active", ev.ActiveID())
	for _, ch := range r.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
