package breathing

import (
	"sync"
	"time"
)

// Ticker is the tick source driving a Timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type clockTicker struct{ t *time.Ticker }

func (c clockTicker) C() <-chan time.Time { return c.t.C }
func (c clockTicker) Stop()               { c.t.Stop() }

// SecondTicker returns a real one-second tick source.
func SecondTicker() Ticker {
	return clockTicker{time.NewTicker(time.Second)}
}

// Tick is one displayed state of the countdown.
type Tick struct {
	Phase Phase `json:"phase"`
	Count int   `json:"count"`
}

// Timer runs a Machine from a tick source until stopped.
type Timer struct {
	ticker   Ticker
	onTick   func(Tick)
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Start emits the initial state synchronously, then one state per tick on a
// background goroutine.
func Start(p Pattern, ticker Ticker, onTick func(Tick)) (*Timer, error) {
	m, err := NewMachine(p)
	if err != nil {
		return nil, err
	}
	t := &Timer{
		ticker: ticker,
		onTick: onTick,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	phase, count := m.Display()
	onTick(Tick{Phase: phase, Count: count})
	go t.run(m)
	return t, nil
}

func (t *Timer) run(m Machine) {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
			m = m.Tick()
			phase, count := m.Display()
			t.onTick(Tick{Phase: phase, Count: count})
		}
	}
}

// Stop releases the tick source and waits for the loop to exit. Safe to
// call more than once.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.ticker.Stop()
	})
	<-t.done
}
