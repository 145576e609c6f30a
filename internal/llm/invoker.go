// Package llm invokes generative models with an ordered fallback list.
package llm

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRetryBackoff = 500 * time.Millisecond

// DefaultModels is the ordered fallback list.
var DefaultModels = []string{"gemini-1.5-flash", "gemini-pro"}

// InvokerConfig configures the fallback invoker.
type InvokerConfig struct {
	Generator Generator
	Models    []string
	Backoff   time.Duration
	Logger    *zap.Logger
	// Sleep waits between retries; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Invoker tries each model in order, retrying transient failures once.
type Invoker struct {
	generator Generator
	models    []string
	backoff   time.Duration
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Invocation describes a successful call.
type Invocation struct {
	Model    string
	Text     string
	Attempts int
}

// NewInvoker validates the configuration.
func NewInvoker(cfg InvokerConfig) (*Invoker, error) {
	if cfg.Generator == nil {
		return nil, errors.New("llm: generator is required")
	}
	models := make([]string, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	if len(models) == 0 {
		models = append(models, DefaultModels...)
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Invoker{generator: cfg.Generator, models: models, backoff: backoff, logger: logger, sleep: sleep}, nil
}

// Models returns the configured fallback order.
func (i *Invoker) Models() []string {
	out := make([]string, len(i.models))
	copy(out, i.models)
	return out
}

// Invoke returns the first successful model response.
func (i *Invoker) Invoke(ctx context.Context, prompt string) (Invocation, error) {
	var lastErr error
	attempts := 0
	for _, model := range i.models {
		retried := false
		for {
			if err := ctx.Err(); err != nil {
				return Invocation{}, err
			}
			attempts++
			text, err := i.generator.Generate(ctx, model, prompt)
			if err == nil {
				return Invocation{Model: model, Text: text, Attempts: attempts}, nil
			}
			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Invocation{}, ctxErr
			}
			if isTerminal(err) {
				return Invocation{}, err
			}
			if !retried && IsTransient(err) {
				retried = true
				delay := jitter(i.backoff)
				i.logger.Warn("model call failed, retrying",
					zap.String("model", model),
					zap.Duration("backoff", delay),
					zap.Error(err))
				if sleepErr := i.sleep(ctx, delay); sleepErr != nil {
					return Invocation{}, sleepErr
				}
				continue
			}
			i.logger.Warn("model call failed, trying next model",
				zap.String("model", model),
				zap.Error(err))
			break
		}
	}
	return Invocation{}, &AllModelsExhaustedError{Models: i.Models(), LastErr: lastErr}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

