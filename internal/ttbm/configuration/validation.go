package configuration

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var validValueModes = []ValueMode{ValueModeConstant, ValueModeRandom}

// Validate checks the invariants every worker relies on. It returns the first violation found.
func (c RunConfig) Validate() error {
	if c.EndTs <= c.StartTs {
		return errors.Errorf("start-time %d should be earlier than end-time %d", c.StartTs, c.EndTs)
	}
	if c.StepMs == 0 {
		return errors.Errorf("step should be greater than 0: %d", c.StepMs)
	}
	if c.ClientCount == 0 {
		return errors.New("number of clients must be greater than 0")
	}
	if c.DeviceCount < c.ClientCount {
		return errors.Errorf("number of clients (%d) cannot be greater than number of devices (%d)", c.ClientCount, c.DeviceCount)
	}
	if c.SensorCount == 0 {
		return errors.New("number of sensors must be greater than 0")
	}
	if c.MaxLineBytes <= 0 {
		return errors.Errorf("maxLineBytes must be positive: %d", c.MaxLineBytes)
	}
	if c.ConnectTimeout < 0 || c.WriteTimeout < 0 || c.StatusInterval < 0 {
		return errors.New("connectTimeout, writeTimeout and statusInterval must be non-negative")
	}
	if !slices.Contains(validValueModes, c.ValueMode) {
		return errors.Errorf("unknown value mode %q, valid modes are %q", c.ValueMode, validValueModes)
	}
	if c.Target.Host == "" || c.Target.Port == 0 {
		return errors.Errorf("invalid target address %q", c.Target.String())
	}
	return nil
}
