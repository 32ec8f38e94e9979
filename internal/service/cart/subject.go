package cart

import (
	"sync"

	"storefront/internal/domain"
)

// subject holds the current cart and fans every new value out to
// subscribers. A subscriber gets the current value on subscription. Values a
// slow subscriber has not consumed yet are replaced by newer ones.
type subject struct {
	mu      sync.Mutex
	current domain.Cart
	subs    map[int]chan domain.Cart
	nextID  int
}

func newSubject(initial domain.Cart) *subject {
	return &subject{current: initial, subs: make(map[int]chan domain.Cart)}
}

func (s *subject) value() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCart(s.current)
}

func (s *subject) publish(c domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
	for _, ch := range s.subs {
		offer(ch, cloneCart(c))
	}
}

// offer replaces whatever is buffered in ch with c.
func offer(ch chan domain.Cart, c domain.Cart) {
	select {
	case ch <- c:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- c:
	default:
	}
}

func (s *subject) subscribe() (<-chan domain.Cart, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan domain.Cart, 1)
	ch <- cloneCart(s.current)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func cloneCart(c domain.Cart) domain.Cart {
	out := c
	out.Items = cloneLines(c.Items)
	out.SavedForLater = cloneLines(c.SavedForLater)
	if c.Delivery != nil {
		d := *c.Delivery
		out.Delivery = &d
	}
	return out
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return nil
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}
