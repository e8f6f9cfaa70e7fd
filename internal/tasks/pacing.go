package tasks

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// PacingPolicy decides the pause between consecutive groups.
type PacingPolicy interface {
	Delay(mode models.RunMode) time.Duration
}

// RandomPacing waits a uniform random interval in [Min, Max] for scheduled runs and a fixed Interactive delay
// otherwise.
type RandomPacing struct {
	Min, Max    time.Duration
	Interactive time.Duration
}

// PacingFromConfig builds the policy from the pacing section.
func PacingFromConfig(cfg shared.PacingConfig) RandomPacing {
	return RandomPacing{Min: cfg.MinWait.Duration, Max: cfg.MaxWait.Duration, Interactive: cfg.InteractiveWait.Duration}
}

func (p RandomPacing) Delay(mode models.RunMode) time.Duration {
	if mode != models.ModeScheduled {
		return p.Interactive
	}
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min+1)
}

// NoPacing never waits.
type NoPacing struct{}

func (NoPacing) Delay(models.RunMode) time.Duration { return 0 }

// wait sleeps for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
