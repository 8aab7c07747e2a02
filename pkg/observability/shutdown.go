package observability

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownSequence runs named teardown steps in registration order once the
// serve context ends. Order matters: listeners drain before the resources
// they depend on are released.
type ShutdownSequence struct {
	logger  *Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []shutdownStep
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// NewShutdownSequence creates an empty sequence. A zero timeout falls back
// to 30 seconds.
func NewShutdownSequence(logger *Logger, timeout time.Duration) *ShutdownSequence {
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &ShutdownSequence{logger: logger, timeout: timeout}
}

// Register appends a teardown step. Steps run in the order they were
// registered.
func (s *ShutdownSequence) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, shutdownStep{name: name, fn: fn})
}

// Run executes every registered step under one shared deadline. A failing
// step is logged and does not stop later steps; all failures are joined
// into the returned error.
func (s *ShutdownSequence) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	steps := s.steps
	s.mu.Unlock()

	var errs []error
	for _, step := range steps {
		start := time.Now()
		if err := step.fn(ctx); err != nil {
			s.logger.WithError(err).WithField("step", step.name).Error("shutdown step failed")
			errs = append(errs, err)
			continue
		}
		s.logger.WithFields(map[string]interface{}{
			"step":    step.name,
			"elapsed": time.Since(start).String(),
		}).Info("shutdown step complete")
	}

	return errors.Join(errs...)
}
