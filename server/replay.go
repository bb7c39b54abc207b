package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"consensus-engine/binlog"
)

// ReplayStats reports what a replay fed through the bridge.
type ReplayStats struct {
	Recorded  uuid.UUID // run id found in the recording, if any
	Ticks     int
	Dropped   int
	Recording binlog.Stats
}

// Replay feeds the snapshots of a recording through the bridge. speed scales
// the recorded pacing; 0 runs as fast as possible. Replies are recorded and
// broadcast like live ones but not sent anywhere.
func (b *Bridge) Replay(ctx context.Context, path string, speed float64) (ReplayStats, error) {
	r, err := binlog.Open(path)
	if err != nil {
		return ReplayStats{}, err
	}
	defer r.Close()

	b.log.Info("replaying", "path", path, "speed", speed)
	var st ReplayStats
	var first time.Time
	startReal := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("replay %s: %w", path, err)
		}

		switch rec.Flag {
		case binlog.FlagRun:
			if id, err := uuid.FromBytes(rec.Payload); err == nil {
				st.Recorded = id
				b.log.Info("recording run", "recorded", id.String())
			}
			continue
		case binlog.FlagSnapshot:
		default:
			continue
		}

		if first.IsZero() {
			first = rec.Time
			startReal = time.Now()
		} else if speed > 0 {
			target := time.Duration(float64(rec.Time.Sub(first)) / speed)
			if wait := target - time.Since(startReal); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return st, ctx.Err()
				}
			}
		}

		if _, err := b.Handle(ctx, rec.Payload, rec.Addr); err != nil {
			st.Dropped++
			b.log.Error(err, "replayed snapshot dropped", "record", r.Stats().Records)
			continue
		}
		st.Ticks++
	}
	st.Recording = r.Stats()
	b.log.Info("replay finished", "ticks", st.Ticks, "dropped", st.Dropped)
	return st, nil
}
