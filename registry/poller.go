package registry

import (
	"context"
	"time"

	"github.com/shimmeringbee/logwrap"
)

const DefaultPollInterval = 2 * time.Minute

// Poller refreshes every registered device on a fixed interval and announces
// the outcome on the event bus. The shared client rate limits the account
// listing fetch, so a large registry does not multiply those calls.
type Poller struct {
	Registry  *Registry
	Publisher EventPublisher
	Logger    logwrap.Logger
	Interval  time.Duration

	stop chan struct{}
}

func (p *Poller) Start() {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}

	p.stop = make(chan struct{}, 1)

	go p.run()
}

func (p *Poller) Stop() {
	if p.stop != nil {
		p.stop <- struct{}{}
	}
}

func (p *Poller) run() {
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	p.pollAll()

	for {
		select {
		case <-t.C:
			p.pollAll()
		case <-p.stop:
			return
		}
	}
}

func (p *Poller) pollAll() {
	for id, d := range p.Registry.Devices() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

		if err := d.Update(ctx); err != nil {
			p.Logger.LogWarn(ctx, "Device state refresh failed.", logwrap.Datum("identifier", id), logwrap.Err(err))
			p.Publisher.Publish(DeviceUpdateFailed{Identifier: id, Device: d, Err: err})
		} else {
			p.Publisher.Publish(DeviceUpdated{Identifier: id, Device: d})
		}

		cancel()
	}
}
