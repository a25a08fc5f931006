package validator

import (
	"errors"
	"fmt"

	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/monitoring"
)

// Checker runs Validate and reports failures to metrics, the log and an
// optional event bus.
type Checker struct {
	difficulty int
	bus        *events.EventBus
}

func NewChecker(difficulty int, bus *events.EventBus) *Checker {
	return &Checker{difficulty: difficulty, bus: bus}
}

func (c *Checker) Check(blocks []*block.Block) error {
	err := Validate(blocks, c.difficulty)
	if err == nil {
		logx.Debug("VALIDATOR", fmt.Sprintf("chain of %d blocks is valid", len(blocks)))
		return nil
	}

	monitoring.IncreaseValidationFailures()
	logx.Warn("VALIDATOR", err.Error())

	var invalid *InvalidBlockError
	if c.bus != nil && errors.As(err, &invalid) {
		c.bus.Publish(events.NewValidationFailed(invalid.Index, invalid.Reason))
	}
	return err
}
