package kv

import "sync"

// pubsub is the in-memory fan-out behind memoryClient's Publish/Subscribe,
// mirroring the delivery behavior of the Redis-backed client (buffered
// subscriber channels, drop on overflow) without a server.
type pubsub struct {
	mu          sync.Mutex
	subscribers map[string]map[int]chan []byte
	nextID      int
	closed      bool
}

func newPubsub() *pubsub {
	return &pubsub{subscribers: make(map[string]map[int]chan []byte)}
}

func (p *pubsub) subscribe(channel string) (<-chan []byte, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan []byte, 64)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	if p.subscribers[channel] == nil {
		p.subscribers[channel] = make(map[int]chan []byte)
	}
	p.subscribers[channel][id] = ch

	once := sync.Once{}
	unsubscribe := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if subs, ok := p.subscribers[channel]; ok {
				if c, ok := subs[id]; ok {
					delete(subs, id)
					close(c)
				}
				if len(subs) == 0 {
					delete(p.subscribers, channel)
				}
			}
		})
	}
	return ch, unsubscribe
}

func (p *pubsub) publish(channel string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.subscribers[channel] {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
}

func (p *pubsub) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	p.subscribers = nil
}
