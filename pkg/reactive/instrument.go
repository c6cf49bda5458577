package reactive

// Instrument observes scheduler activity. Implementations live in
// pkg/middleware (Prometheus, OpenTelemetry).
//
// FlushStarted and the FlushDone it returns are called on the scheduler's
// goroutine. ObserverFailed may also be called from the goroutine awaiting an
// async observer, so it must be safe for concurrent use.
type Instrument interface {
	// FlushStarted is called before a flush dispatches its batch.
	FlushStarted(queued int) FlushDone

	// ObserverFailed is called for every isolated observer failure.
	ObserverFailed(err error)
}

// FlushDone completes a flush started with Instrument.FlushStarted. err is a
// *CycleError when the flush tripped the cycle breaker.
type FlushDone func(dispatched int, err error)

// Instruments combines several instruments into one.
func Instruments(list ...Instrument) Instrument {
	filtered := make(multiInstrument, 0, len(list))
	for _, in := range list {
		if in != nil {
			filtered = append(filtered, in)
		}
	}
	return filtered
}

type multiInstrument []Instrument

func (m multiInstrument) FlushStarted(queued int) FlushDone {
	dones := make([]FlushDone, len(m))
	for i, in := range m {
		dones[i] = in.FlushStarted(queued)
	}
	return func(dispatched int, err error) {
		for _, done := range dones {
			if done != nil {
				done(dispatched, err)
			}
		}
	}
}

func (m multiInstrument) ObserverFailed(err error) {
	for _, in := range m {
		in.ObserverFailed(err)
	}
}

type nopInstrument struct{}

func (nopInstrument) FlushStarted(int) FlushDone { return func(int, error) {} }
func (nopInstrument) ObserverFailed(error)       {}
