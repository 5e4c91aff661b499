package listener

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"rtb-client/internal/sandbox/engine"
	"rtb-client/internal/sandbox/storage"
)

const debounce = 200 * time.Millisecond

// ListenAndRefresh rebuilds the engine snapshot whenever the inventory channel is
// notified. Connection failures are retried with jittered exponential backoff until
// ctx is done.
func ListenAndRefresh(ctx context.Context, st *storage.Store, eng *engine.DeliveryEngine, channel string, baseBackoff time.Duration) {
	if channel == "" {
		channel = st.ListenChannel()
	}
	b := newBackoff(baseBackoff)

	for ctx.Err() == nil {
		err := listen(ctx, st, eng, channel, b)
		if ctx.Err() != nil {
			break
		}
		wait := b.Duration()
		log.Error().Err(err).Str("channel", channel).Dur("retry_in", wait).Msg("listener error")
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	log.Info().Msg("listener stopped")
}

func listen(ctx context.Context, st *storage.Store, eng *engine.DeliveryEngine, channel string, b *backoff.Backoff) error {
	conn, err := st.PgxPool().Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+quoteIdent(channel)); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for inventory changes")
	b.Reset()

	var lastRefresh time.Time
	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if time.Since(lastRefresh) < debounce {
			continue // debounce burst of notifications
		}
		lastRefresh = time.Now()
		log.Info().Str("channel", ntf.Channel).Msg("inventory change; refreshing snapshot")
		if err := eng.BuildSnapshot(ctx, st); err != nil {
			log.Error().Err(err).Msg("refresh snapshot error")
		}
	}
}

func newBackoff(base time.Duration) *backoff.Backoff {
	if base <= 0 {
		base = time.Second
	}
	return &backoff.Backoff{
		Min:    base,
		Max:    base * 12,
		Factor: 2,
		Jitter: true,
	}
}

func quoteIdent(s string) string {
	out := []byte{'"'}
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}
