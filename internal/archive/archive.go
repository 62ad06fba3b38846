// Package archive enforces event retention. Each round it exports events
// past the retention age to the configured destinations and, only when
// every destination accepted the export, sweeps them from the log.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/eventlog"
)

// Destination is the interface for an archive target (S3, git, etc.).
type Destination interface {
	// Write stores the JSONL payload under name.
	Write(ctx context.Context, name string, data []byte) error
}

// Config controls retention rounds.
type Config struct {
	Interval  time.Duration // time between rounds
	MaxAge    time.Duration // events older than this are archived and swept
	BatchSize int           // most events exported per round
}

// DefaultConfig returns hourly rounds with thirty days of retention.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		MaxAge:    30 * 24 * time.Hour,
		BatchSize: 10000,
	}
}

// Result describes one retention round.
type Result struct {
	Cutoff   time.Time `json:"cutoff"`
	Exported int       `json:"exported"`
	Swept    int64     `json:"swept"`
}

// Scheduler runs periodic retention rounds.
type Scheduler struct {
	log          *eventlog.Log
	destinations []Destination
	cfg          Config
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that archives from log to the given
// destinations. With no destinations, old events are swept without export.
func NewScheduler(log *eventlog.Log, destinations []Destination, cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		log:          log,
		destinations: destinations,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start begins periodic rounds. It runs one immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current round (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.runLogged(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("archive round failed", "err", err)
		}
		return
	}
	if res.Exported > 0 || res.Swept > 0 {
		s.logger.Info("archive round completed",
			"cutoff", res.Cutoff.Format(time.RFC3339),
			"exported", res.Exported,
			"swept", res.Swept,
			"destinations", len(s.destinations))
	}
}

// RunOnce performs a single retention round.
//
// When a round fills its batch, the cutoff is pulled back to the newest
// exported second so events sharing that second wait for the next round
// rather than being swept unexported.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	cutoff := s.log.Cutoff(s.cfg.MaxAge)
	res := &Result{Cutoff: cutoff}

	if len(s.destinations) == 0 {
		n, err := s.log.SweepBefore(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		res.Swept = n
		return res, nil
	}

	evts, err := s.log.Before(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list events before cutoff: %w", err)
	}
	if len(evts) == 0 {
		return res, nil
	}

	if len(evts) == s.cfg.BatchSize {
		boundary := evts[len(evts)-1].CreatedAt
		n := len(evts)
		for n > 0 && !evts[n-1].CreatedAt.Before(boundary) {
			n--
		}
		if n == 0 {
			return nil, fmt.Errorf("more than %d events share second %s", s.cfg.BatchSize, boundary.Format(time.RFC3339))
		}
		evts = evts[:n]
		cutoff = boundary
		res.Cutoff = cutoff
	}

	var buf bytes.Buffer
	if err := ExportJSONL(&buf, cutoff, evts); err != nil {
		return nil, err
	}
	name := ObjectName(cutoff)

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, name, buf.Bytes()); err != nil {
			s.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("export %s, sweep skipped: %w", name, errors.Join(errs...))
	}
	res.Exported = len(evts)

	n, err := s.log.SweepBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	res.Swept = n
	return res, nil
}

// ObjectName is the file or object name for an export ending at cutoff.
func ObjectName(cutoff time.Time) string {
	return "events-" + cutoff.UTC().Format("20060102T150405Z") + ".jsonl"
}
