package intel

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/classifier"
	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
)

// State is a step of a single-shot synthesis
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SingleShot sends the whole digest to a high-capacity model in one request
type SingleShot struct {
	Model    llm.Model
	Policy   retry.Policy
	Taxonomy classifier.Taxonomy

	// OnState observes every state transition. err is set for Retrying and Failed.
	OnState func(s State, err error)
}

func (s *SingleShot) Name() string { return "single-shot" }

// Synthesize runs Idle -> Requesting -> {Succeeded, Retrying, Failed}.
// Transient failures go back through Retrying until the policy gives up;
// any failure ends in a report whose body describes it.
func (s *SingleShot) Synthesize(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Text) == "" {
		return "", errors.New("nothing to synthesize: digest text is empty")
	}

	s.transition(StateIdle, nil)
	prompt := buildReportPrompt(s.Taxonomy, in.Text)

	policy := s.Policy
	if policy.Retryable == nil {
		policy.Retryable = llm.IsTransient
	}
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Printf("[intel] Attempt %d failed: %v (retrying in %s)", attempt, err, delay)
		s.transition(StateRetrying, err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		s.transition(StateRequesting, nil)
		return s.Model.Generate(ctx, prompt)
	})

	header := Header(generatedAt(in), s.Model)
	if err != nil {
		log.Printf("[intel] Synthesis failed: %v", err)
		s.transition(StateFailed, err)
		return header + failureBody(err), nil
	}

	s.transition(StateSucceeded, nil)
	return header + stripTitle(resp) + "\n", nil
}

func (s *SingleShot) transition(to State, err error) {
	if s.OnState != nil {
		s.OnState(to, err)
	}
}
