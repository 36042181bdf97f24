package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/humanalog/markedfordeath/internal/model"
)

// DefaultInterval is how often status is sampled when Dependencies.Interval is zero.
const DefaultInterval = 30 * time.Second

// StatusWriter receives every status sample.
type StatusWriter interface {
	RecordStatus(ctx context.Context, s model.Status) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// PlayersOnline and Mark must be safe to call from any goroutine.
	PlayersOnline func() int
	Mark          func() model.MarkRecord
	HostConnected func() bool

	// Writer may be nil.
	Writer StatusWriter
	// StatusFile is rewritten with the latest sample; empty disables it.
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	last      model.Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent sample.
func (s *Service) Last() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// GetStatus samples the current status.
func (s *Service) GetStatus() model.Status {
	st := model.Status{Time: s.deps.Now().UTC()}
	if s.deps.PlayersOnline != nil {
		st.PlayersOnline = s.deps.PlayersOnline()
	}
	if s.deps.HostConnected != nil {
		st.HostConnected = s.deps.HostConnected()
	}
	if s.deps.Mark != nil {
		r := s.deps.Mark()
		st.MarkedID = r.MarkedID
		st.MarkedName = r.MarkedName
		st.GridLocation = r.GridLocation
	}
	return st
}

// Sample takes one status sample and writes it out.
func (s *Service) Sample(ctx context.Context) model.Status {
	st := s.GetStatus()

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, st); err != nil {
			s.deps.Logger.Error("Error writing status file", "error", err, "path", s.deps.StatusFile)
		}
	}
	if s.deps.Writer != nil {
		if err := s.deps.Writer.RecordStatus(ctx, st); err != nil {
			s.deps.Logger.Warn("Error recording status", "error", err)
		}
	}
	return st
}

func writeStatusFile(path string, st model.Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Run samples status every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}
