package report

import (
	"sync"

	"go.uber.org/zap"
)

// Collector is a core.Reporter that keeps registered failures for the
// script result.
type Collector struct {
	mu       sync.Mutex
	failures []error
	logger   *zap.Logger
}

// NewCollector creates a Collector. logger may be nil.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// RegisterFailure implements core.Reporter.
func (c *Collector) RegisterFailure(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.failures = append(c.failures, err)
	c.mu.Unlock()
	c.logger.Warn("test failure registered", zap.Error(err))
}

// Failures returns the registered failures in order.
func (c *Collector) Failures() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.failures))
	copy(out, c.failures)
	return out
}

// Messages returns the failure messages in order.
func (c *Collector) Messages() []string {
	failures := c.Failures()
	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, len(failures))
	for i, err := range failures {
		msgs[i] = err.Error()
	}
	return msgs
}

// Len returns the number of registered failures.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}
