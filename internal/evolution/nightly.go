package evolution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
	"github.com/zenzeng/endgameos/pkg/types"
)

// dateLayout matches the date prefix written into a Log node's timestamp
// attribute, used for the "yesterday" prefix match.
const dateLayout = "2006-01-02"

// Scheduler runs the nightly reflect-strategize cycle once a day at a
// configured local hour. It wraps one [Service] and owns its own
// start/stop lifecycle, independent of the service's other callers.
type Scheduler struct {
	service *Service
	hour    int
	userID  string

	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a Scheduler that runs the nightly cycle for userID at
// the hour configured on the service.
func NewScheduler(service *Service, userID string) *Scheduler {
	return &Scheduler{
		service: service,
		hour:    service.cfg.NightlyCycleHour,
		userID:  userID,
		done:    make(chan struct{}),
	}
}

// Start begins the nightly scheduling loop in a background goroutine. The
// goroutine exits when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the scheduling loop. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// loop sleeps until the next occurrence of the configured hour, runs the
// cycle, then repeats. Using a recomputed timer rather than a fixed ticker
// keeps the cycle pinned to wall-clock local time across DST shifts.
func (s *Scheduler) loop(ctx context.Context) {
	for {
		wait := s.untilNextRun()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.service.RunNightlyCycle(ctx, s.userID); err != nil {
				s.service.logger.Warn("evolution: nightly cycle failed", "error", err, "user_id", s.userID)
			}
		}
	}
}

// untilNextRun returns the duration until the next occurrence of the
// configured hour, today if it hasn't passed yet, tomorrow otherwise.
func (s *Scheduler) untilNextRun() time.Duration {
	now := s.service.clock()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RunNightlyCycle scans yesterday's Log nodes for userID and, if any exist,
// runs the Reflector then Strategist passes, persisting one Experience per
// surfaced insight. A no-op if there is no prior-day activity.
func (s *Service) RunNightlyCycle(ctx context.Context, userID string) error {
	start := s.clock()
	defer func() {
		s.metrics.NightlyCycleDuration.Record(ctx, s.clock().Sub(start).Seconds())
	}()

	logs, err := s.yesterdaysLogs(ctx, userID)
	if err != nil {
		return fmt.Errorf("evolution: fetch yesterday's logs: %w", err)
	}
	if len(logs) == 0 {
		s.logger.Info("evolution: no activity yesterday, skipping nightly cycle", "user_id", userID)
		return nil
	}
	if len(logs) > reflectorLogCap {
		logs = logs[:reflectorLogCap]
	}
	combined := strings.Join(logs, "\n")

	reflections, err := s.runReflector(ctx, combined)
	if err != nil {
		return fmt.Errorf("evolution: reflector pass: %w", err)
	}
	if len(reflections) == 0 {
		s.logger.Info("evolution: reflector found no significant issues", "user_id", userID)
		return nil
	}

	for _, r := range reflections {
		strategy, err := s.runStrategist(ctx, r.insight)
		if err != nil {
			s.logger.Warn("evolution: strategist pass failed", "error", err, "trigger", r.trigger)
			continue
		}
		if strategy == "" {
			continue
		}
		s.recordExperience(ctx, userID, r.trigger, r.insight, strategy, "nightly")
	}
	return nil
}

// yesterdaysLogs returns the content of every Log node for userID whose
// timestamp attribute carries yesterday's date prefix.
func (s *Service) yesterdaysLogs(ctx context.Context, userID string) ([]string, error) {
	nodes, err := s.graph.GetNodesByType(ctx, userID, graphstore.TypeLog)
	if err != nil {
		return nil, err
	}

	yesterday := s.clock().AddDate(0, 0, -1).Format(dateLayout)
	var logs []string
	for _, n := range nodes {
		ts, _ := n.Attributes["timestamp"].(string)
		if strings.HasPrefix(ts, yesterday) {
			logs = append(logs, n.Content)
		}
	}
	return logs, nil
}

// runReflector asks the reasoning backend to surface up to three
// TRIGGER/INSIGHT pairs from a day's worth of logs.
func (s *Service) runReflector(ctx context.Context, logs string) ([]reflection, error) {
	var b strings.Builder
	b.WriteString("You are reviewing your own behavior log from yesterday, acting as the user's long-term ")
	b.WriteString("digital counterpart. Identify whether the user drifted from their stated vision, or whether ")
	b.WriteString("any inefficient or emotionally reactive pattern shows up.\n\n")
	fmt.Fprintf(&b, "Yesterday's logs:\n%s\n\n", logs)
	b.WriteString("Output 0 to 3 key insights, each as two lines:\n")
	b.WriteString("TRIGGER: <behavior or scenario>\n")
	b.WriteString("INSIGHT: <root cause>\n")

	resp, err := s.reasoner.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	var results []reflection
	var current reflection
	haveTrigger := false
	for _, line := range strings.Split(strings.TrimSpace(resp.Content), "\n") {
		switch {
		case strings.HasPrefix(line, "TRIGGER:"):
			if haveTrigger {
				results = append(results, current)
			}
			current = reflection{trigger: strings.TrimSpace(strings.TrimPrefix(line, "TRIGGER:"))}
			haveTrigger = true
		case strings.HasPrefix(line, "INSIGHT:"):
			if haveTrigger {
				current.insight = strings.TrimSpace(strings.TrimPrefix(line, "INSIGHT:"))
				results = append(results, current)
				haveTrigger = false
			}
		}
	}
	return results, nil
}

// runStrategist asks the reasoning backend for one concrete, two-minutes-
// or-less improvement strategy addressing insight.
func (s *Service) runStrategist(ctx context.Context, insight string) (string, error) {
	var b strings.Builder
	b.WriteString("Given the following behavioral insight, produce one specific, actionable improvement ")
	b.WriteString("strategy. It must be completable in under two minutes, or be a purely mental adjustment.\n\n")
	fmt.Fprintf(&b, "Insight: %s\n\n", insight)
	b.WriteString("Strategy (output only the strategy itself):\n")

	resp, err := s.reasoner.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}
