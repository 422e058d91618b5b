// Package trigger runs imports and pushes requested by JSON files dropped
// into an inbox directory.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/security"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/watch"
)

// Actions a trigger file may request.
const (
	ActionImport = "import"
	ActionPush   = "push"
)

// FailedSuffix is appended to trigger files that could not be processed.
const FailedSuffix = ".failed"

// Trigger is the content of one trigger file. For an import ID is the
// external id; for a push it is the local record id.
type Trigger struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Action string `json:"action"`
}

// Parse decodes and validates a trigger file body.
func Parse(data []byte) (Trigger, record.EntityType, error) {
	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return t, "", domainerrors.NewError(domainerrors.CodeValidation, "decode trigger", err)
	}
	entity, err := record.ParseEntityType(t.Entity)
	if err != nil {
		return t, "", err
	}
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return t, "", domainerrors.New("trigger", "id is required")
	}
	t.Action = strings.ToLower(strings.TrimSpace(t.Action))
	if t.Action != ActionImport && t.Action != ActionPush {
		return t, "", domainerrors.New("trigger", fmt.Sprintf("unknown action %q: must be import or push", t.Action))
	}
	return t, entity, nil
}

// Runner executes the requested sync operations.
type Runner interface {
	ImportOne(ctx context.Context, entity record.EntityType, externalID string) outcome.Outcome
	PushToAPI(ctx context.Context, entity record.EntityType, id record.RecordID) (bool, error)
}

// Result reports how one trigger file was handled.
type Result struct {
	Path    string
	Trigger Trigger
	Status  string // outcome status of an import, "pushed" for an accepted push
	Err     error
}

// Config holds configuration for the Service.
type Config struct {
	InboxDir string
	Debounce time.Duration
	// OnResult is called after each trigger file is handled (optional).
	OnResult func(Result)
}

// Service watches the inbox and runs each trigger it finds. Files already
// present at Start are processed first, oldest name first. A handled file is
// removed; a file that fails is renamed with FailedSuffix.
type Service struct {
	runner Runner
	logger *logging.Logger
	config Config
	paths  *security.PathValidator

	running bool
	mu      sync.Mutex
	watcher *watch.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg Config, runner Runner, logger *logging.Logger) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.InboxDir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	inbox, err := filepath.Abs(cfg.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox: %w", err)
	}
	cfg.InboxDir = inbox
	return &Service{
		runner: runner,
		logger: logger,
		config: cfg,
		paths:  security.NewPathValidator(inbox),
	}, nil
}

// Start creates the inbox if needed, drains existing triggers and begins watching.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := os.MkdirAll(s.config.InboxDir, 0755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	cfg := watch.DefaultConfig()
	cfg.Debounce = s.config.Debounce
	watcher, err := watch.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := watcher.Watch(runCtx, s.config.InboxDir); err != nil {
		cancel()
		_ = watcher.Close()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	s.watcher = watcher
	s.cancel = cancel

	s.drain(runCtx)

	s.wg.Add(1)
	go s.processEvents(runCtx, watcher)

	s.running = true
	s.logger.Info("trigger inbox watch started", "inbox", s.config.InboxDir)
	return nil
}

// Stop stops watching. In-flight triggers finish first.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("error closing watcher", "error", err)
	}
	s.wg.Wait()

	s.running = false
	s.logger.Info("trigger inbox watch stopped")
	return nil
}

// IsRunning returns true while the service is watching.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// drain handles triggers written before the watcher started.
func (s *Service) drain(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(s.config.InboxDir, "*.json"))
	if err != nil {
		s.logger.Warn("listing inbox", "inbox", s.config.InboxDir, "error", err)
		return
	}
	sort.Strings(matches)
	for _, path := range matches {
		s.Handle(ctx, path)
	}
}

func (s *Service) processEvents(ctx context.Context, watcher *watch.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events():
			if !ok {
				return
			}
			s.Handle(ctx, event.Path)

		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// Handle processes one trigger file. A file that no longer exists is
// ignored, as is anything that is not a regular file inside the inbox.
func (s *Service) Handle(ctx context.Context, path string) {
	if err := s.paths.Validate(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WarnContext(ctx, "ignoring trigger", "path", path, "error", err)
		}
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	res := Result{Path: path}
	if err != nil {
		res.Err = err
	} else {
		res = s.run(ctx, path, data)
	}

	if res.Err != nil {
		s.logger.WarnContext(ctx, "trigger failed", "path", path, "action", res.Trigger.Action, "error", res.Err)
		if rerr := os.Rename(path, path+FailedSuffix); rerr != nil {
			s.logger.Error("parking failed trigger", "path", path, "error", rerr)
		}
	} else {
		s.logger.InfoContext(ctx, "trigger handled", "path", path, "action", res.Trigger.Action, "status", res.Status)
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			s.logger.Error("removing handled trigger", "path", path, "error", rerr)
		}
	}

	if s.config.OnResult != nil {
		s.config.OnResult(res)
	}
}

func (s *Service) run(ctx context.Context, path string, data []byte) Result {
	t, entity, err := Parse(data)
	res := Result{Path: path, Trigger: t}
	if err != nil {
		res.Err = err
		return res
	}

	switch t.Action {
	case ActionImport:
		o := s.runner.ImportOne(ctx, entity, t.ID)
		res.Status = string(o.Status)
		if o.Failed() {
			res.Err = errors.New(o.Message)
		}
	case ActionPush:
		accepted, err := s.runner.PushToAPI(ctx, entity, record.RecordID(t.ID))
		if accepted {
			res.Status = "pushed"
		} else {
			res.Status = string(outcome.StatusError)
			res.Err = err
			if res.Err == nil {
				res.Err = fmt.Errorf("push of %s %s was not accepted", entity, t.ID)
			}
		}
	}
	return res
}
