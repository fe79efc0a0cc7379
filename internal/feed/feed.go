// Package feed turns the one-shot experiment listing into a stream of full
// snapshots.
//
// A Poller re-lists every Interval and also whenever the Broker reports a
// write, so in-process changes show up immediately while writes made by
// other processes show up within one interval. Each tick costs one FindAll
// per subscriber.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/logging"
)

// DefaultInterval is the re-list period when none is configured.
const DefaultInterval = 5 * time.Second

// Broker fans write notifications out to subscribers. The zero value is
// ready to use.
type Broker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Notify wakes every subscriber. Pending wakes are coalesced.
func (b *Broker) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a wake channel and a function that unregisters it.
func (b *Broker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan struct{}]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports how many wake channels are registered.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Lister is the listing half of the experiment service.
type Lister interface {
	List(ctx context.Context) ([]domain.Experiment, error)
}

// Snapshot is one published listing. Err is set when the listing failed;
// the stream keeps going.
type Snapshot struct {
	Experiments []domain.Experiment
	Err         error
	At          time.Time
}

// Poller publishes snapshots of the experiment collection.
type Poller struct {
	lister   Lister
	broker   *Broker
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller. broker may be nil for timer-only polling and
// interval <= 0 selects DefaultInterval.
func NewPoller(lister Lister, broker *Broker, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{lister: lister, broker: broker, interval: interval, logger: logger}
}

// Interval returns the re-list period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe starts a polling loop for one consumer. The first snapshot is
// published immediately. The returned channel is closed once ctx is done,
// after the ticker is stopped and the broker subscription released.
func (p *Poller) Subscribe(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot)

	var wake <-chan struct{}
	unsubscribe := func() {}
	if p.broker != nil {
		wake, unsubscribe = p.broker.Subscribe()
	}

	go func() {
		ticker := time.NewTicker(p.interval)
		defer close(out)
		defer ticker.Stop()
		defer unsubscribe()

		for {
			if !p.publish(ctx, out) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			}
		}
	}()

	return out
}

func (p *Poller) publish(ctx context.Context, out chan<- Snapshot) bool {
	experiments, err := p.lister.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Warn("experiment feed listing failed", "error", err)
	}

	select {
	case out <- Snapshot{Experiments: experiments, Err: err, At: time.Now()}:
		return true
	case <-ctx.Done():
		return false
	}
}
