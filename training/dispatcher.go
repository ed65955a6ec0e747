package training

import "sync"

// Dispatcher accepts training steps from the epoch loop and runs them on
// background workers. Submitted steps execute strictly one at a time, so
// optimizer and parameter state never sees concurrent updates; the
// dispatcher only decouples submission from execution. The first error stops
// all further work.
type Dispatcher struct {
	sem   chan struct{}
	wg    sync.WaitGroup
	run   sync.Mutex
	errMu sync.Mutex
	err   error
}

// NewDispatcher creates a dispatcher with the given queue depth. A depth
// below one is treated as one.
func NewDispatcher(depth int) *Dispatcher {
	if depth < 1 {
		depth = 1
	}
	return &Dispatcher{sem: make(chan struct{}, depth)}
}

// Submit queues one step. It blocks while the queue is full and returns as
// soon as the step is accepted; errors surface from Drain.
func (d *Dispatcher) Submit(step func() error) {
	d.sem <- struct{}{}
	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.sem
			d.wg.Done()
		}()
		if d.failed() {
			return
		}
		d.run.Lock()
		defer d.run.Unlock()
		if d.failed() {
			return
		}
		if err := step(); err != nil {
			d.errMu.Lock()
			if d.err == nil {
				d.err = err
			}
			d.errMu.Unlock()
		}
	}()
}

// Drain waits for every submitted step to finish and returns the first
// error, if any. The dispatcher is reusable afterwards.
func (d *Dispatcher) Drain() error {
	d.wg.Wait()
	d.errMu.Lock()
	defer d.errMu.Unlock()
	err := d.err
	d.err = nil
	return err
}

func (d *Dispatcher) failed() bool {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err != nil
}
