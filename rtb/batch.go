package rtb

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"rtb-client/internal/observability"
)

// RequestBatch requests every slot concurrently and delivers the merged creatives once,
// when all slots complete or the client timeout elapses, whichever comes first.
// Failed slots are logged and left out; the batch itself always reports Success.
// An empty slots list yields FailedUnlinkSlot immediately on the calling goroutine.
func (c *Client) RequestBatch(slots []*Slot, cb AdListener) error {
	if err := c.ready(); err != nil {
		return err
	}
	if cb == nil {
		log.Error().Msg("RequestBatch called with nil listener")
		return ErrNilListener
	}
	c.batch(slots, func(o Outcome, ads []Creative, _ []SlotResult) { cb(o, ads) })
	return nil
}

// RequestBatchReport is RequestBatch with per-slot diagnostics.
func (c *Client) RequestBatchReport(slots []*Slot, cb BatchListener) error {
	if err := c.ready(); err != nil {
		return err
	}
	if cb == nil {
		log.Error().Msg("RequestBatchReport called with nil listener")
		return ErrNilListener
	}
	c.batch(slots, cb)
	return nil
}

func (c *Client) batch(slots []*Slot, cb BatchListener) {
	if len(slots) == 0 {
		cb(FailedUnlinkSlot, nil, nil)
		return
	}

	var (
		mu      sync.Mutex
		ads     []Creative
		results = make([]SlotResult, len(slots))
		done    = make(chan struct{}, len(slots))
		start   = time.Now()
	)
	for i, s := range slots {
		results[i] = SlotResult{Slot: s, Outcome: Pending}
	}

	for i, s := range slots {
		i, s := i, s // per-iteration copy; go directive is 1.21
		c.requestSlot(s, func(o Outcome, got []Creative) {
			mu.Lock()
			results[i] = SlotResult{Slot: s, Outcome: o, Ads: len(got), Done: true}
			if o.OK() && got != nil {
				ads = append(ads, got...)
			} else {
				observability.BatchSlotsDropped.Inc()
				ev := log.Debug().Int("code", o.Code).Str("text", o.Text)
				if s != nil {
					ev = ev.Str("slot", s.ID)
				}
				ev.Msg("slot left out of batch")
			}
			mu.Unlock()
			done <- struct{}{}
		})
	}

	c.pool.Go(func() {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()

		pending := len(slots)
	wait:
		for pending > 0 {
			select {
			case <-done:
				pending--
			case <-timer.C:
				break wait
			}
		}

		mu.Lock()
		out := make([]Creative, len(ads))
		copy(out, ads)
		res := make([]SlotResult, len(results))
		copy(res, results)
		mu.Unlock()

		if pending > 0 {
			observability.BatchDeadlines.Inc()
			log.Debug().Int("pending", pending).Int("slots", len(slots)).Msg("batch deadline reached")
		}
		observability.BatchDuration.Observe(time.Since(start).Seconds())
		cb(Success, out, res)
	})
}
