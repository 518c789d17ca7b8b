package crew

import (
	"context"
	"errors"
	"time"
)

// Mission runs one takeoff-to-landing cycle for a captain.
type Mission struct {
	captain *Captain
}

// NewMission returns a mission commanded by c.
func NewMission(c *Captain) *Mission {
	return &Mission{captain: c}
}

// Run takes off, then polls until the captain asks to land, a task fails
// or ctx is done. A failure or cancellation parks the robot first. Teardown
// always runs to completion, including the final delay, even after ctx is
// cancelled.
func (m *Mission) Run(ctx context.Context) error {
	c := m.captain
	teardown := context.WithoutCancel(ctx)

	if err := c.Takeoff(ctx); err != nil {
		c.log.Error("takeoff failed", "error", err)
		if serr := c.SafeStop(teardown, err); serr != nil {
			c.log.Error("safe stop", "error", serr)
		}
		return errors.Join(err, c.Land(teardown))
	}

	cause := m.wait(ctx)
	if cause != nil {
		if err := c.SafeStop(teardown, cause); err != nil {
			c.log.Error("safe stop", "error", err)
		}
	}

	landErr := c.Land(teardown)
	if err := c.deck.Clock.Sleep(teardown, c.deck.Config.FinalDelay); err != nil {
		landErr = errors.Join(landErr, err)
	}
	c.log.Info("mission over", "cause", cause)
	return errors.Join(cause, landErr)
}

func (m *Mission) wait(ctx context.Context) error {
	c := m.captain
	errs := c.deck.Sched.Errors()

	ticker := time.NewTicker(c.deck.Config.PollInterval)
	defer ticker.Stop()

	for !c.Landing() {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case err := <-errs:
			return err
		case <-ticker.C:
		}
	}
	return nil
}
