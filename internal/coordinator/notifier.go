package coordinator

import "sync"

// notifier runs callbacks on one goroutine, in the order they were pushed.
// Pushing never blocks, so events can be queued while the coordinator lock
// is held and callbacks are still free to call back into the coordinator.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []func()
	closed bool
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) push(fn func()) {
	n.mu.Lock()
	if !n.closed {
		n.events = append(n.events, fn)
		n.cond.Signal()
	}
	n.mu.Unlock()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.events) == 0 && !n.closed {
			n.cond.Wait()
		}
		events := n.events
		n.events = nil
		closed := n.closed
		n.mu.Unlock()

		for _, fn := range events {
			fn()
		}
		if closed && len(events) == 0 {
			return
		}
	}
}

// close delivers what is queued, then stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
	<-n.done
}
