// Package filtering keeps each project's active filter collection, loads it
// from storage with a reset-to-empty fallback, and serializes edits against
// concurrent evaluation.
package filtering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/workbench/internal/domain"
	"github.com/rpattn/workbench/internal/filter"
	"github.com/rpattn/workbench/internal/repository"
)

// ErrRuleNotFound is returned when an edit names a rule the active set does not hold.
var ErrRuleNotFound = errors.New("filter rule not found")

// Notifier is the host's channel for messages a user should see.
type Notifier interface {
	Warn(ctx context.Context, project, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, project, message string)

func (f NotifierFunc) Warn(ctx context.Context, project, message string) { f(ctx, project, message) }

type projectState struct {
	mu     sync.RWMutex
	set    *filter.RuleSet
	loaded bool
}

// Service coordinates the active rule set of every project. Edits hold the
// project's write lock; evaluation holds its read lock.
type Service struct {
	repo     repository.FilterCollectionRepository
	notifier Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	projects map[string]*projectState
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(repo repository.FilterCollectionRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: NotifierFunc(func(context.Context, string, string) {}),
		logger:   zap.NewNop(),
		projects: make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("filtering")
	return s
}

// Reload discards the cached set and reads the project's collection again.
func (s *Service) Reload(ctx context.Context, project string) error {
	state, name, err := s.state(project)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return s.load(ctx, name, state)
}

// Active returns a copy of the project's active set.
func (s *Service) Active(ctx context.Context, project string) (*filter.RuleSet, error) {
	var clone *filter.RuleSet
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		clone = set.Clone()
		return nil
	})
	return clone, err
}

// Description returns the active set's description.
func (s *Service) Description(ctx context.Context, project string) (string, error) {
	var description string
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		description = set.Description()
		return nil
	})
	return description, err
}

// Document renders the active set as a FilterCollection document.
func (s *Service) Document(ctx context.Context, project string) ([]byte, error) {
	var document []byte
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		data, err := filter.Marshal(set)
		document = data
		return err
	})
	return document, err
}

// Evaluate reports whether item is visible under the project's filter.
func (s *Service) Evaluate(ctx context.Context, project string, item filter.Item) (bool, error) {
	var included bool
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		ok, err := set.IsIncluded(item)
		included = ok
		return err
	})
	return included, err
}

// Apply returns the items visible under the project's filter, in order.
func (s *Service) Apply(ctx context.Context, project string, items []*domain.WorkItem) ([]*domain.WorkItem, error) {
	var visible []*domain.WorkItem
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		result, err := filter.Filter(set, items)
		visible = result
		return err
	})
	return visible, err
}

// View returns the visible items together with the description of the rule
// set that selected them, both read under one lock.
func (s *Service) View(ctx context.Context, project string, items []*domain.WorkItem) ([]*domain.WorkItem, string, error) {
	var visible []*domain.WorkItem
	var description string
	err := s.read(ctx, project, func(set *filter.RuleSet) error {
		result, err := filter.Filter(set, items)
		if err != nil {
			return err
		}
		visible = result
		description = set.Description()
		return nil
	})
	return visible, description, err
}

// Edit runs fn on a copy of the active set under the project's write lock.
// The copy is persisted and installed only when fn and the save succeed.
func (s *Service) Edit(ctx context.Context, project string, fn func(*filter.RuleSet) error) error {
	state, name, err := s.state(project)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.loaded {
		if err := s.load(ctx, name, state); err != nil {
			return err
		}
	}

	draft := state.set.Clone()
	if err := fn(draft); err != nil {
		return err
	}
	if err := s.persist(ctx, name, draft); err != nil {
		return err
	}
	state.set = draft
	s.logger.Debug("filter updated", zap.String("project", name), zap.Int("rules", draft.Len()))
	return nil
}

// Replace installs a rule set decoded from document. Schema violations are
// returned to the caller unchanged.
func (s *Service) Replace(ctx context.Context, project string, document []byte) error {
	set, err := filter.Unmarshal(document)
	if err != nil {
		return err
	}
	return s.Edit(ctx, project, func(draft *filter.RuleSet) error {
		draft.Clear()
		for _, rule := range set.Rules() {
			if _, err := draft.And(rule.Clone()); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddRule validates and appends a copy of rule, returning the stored copy.
func (s *Service) AddRule(ctx context.Context, project string, rule *filter.Rule) (*filter.Rule, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: rule is nil", filter.ErrInvalidArgument)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	stored := rule.Clone()
	err := s.Edit(ctx, project, func(draft *filter.RuleSet) error {
		_, err := draft.And(stored)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// RemoveRule removes the rule with the given identity.
func (s *Service) RemoveRule(ctx context.Context, project string, id uuid.UUID) error {
	return s.Edit(ctx, project, func(draft *filter.RuleSet) error {
		if !draft.RemoveByID(id) {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}
		return nil
	})
}

// Clear resets the project to "no filter".
func (s *Service) Clear(ctx context.Context, project string) error {
	return s.Edit(ctx, project, func(draft *filter.RuleSet) error {
		draft.Clear()
		return nil
	})
}

func (s *Service) read(ctx context.Context, project string, fn func(*filter.RuleSet) error) error {
	state, name, err := s.state(project)
	if err != nil {
		return err
	}

	state.mu.RLock()
	if state.loaded {
		defer state.mu.RUnlock()
		return fn(state.set)
	}
	state.mu.RUnlock()

	state.mu.Lock()
	if !state.loaded {
		if err := s.load(ctx, name, state); err != nil {
			state.mu.Unlock()
			return err
		}
	}
	state.mu.Unlock()

	state.mu.RLock()
	defer state.mu.RUnlock()
	return fn(state.set)
}

func (s *Service) state(project string) (*projectState, string, error) {
	name := strings.TrimSpace(project)
	if name == "" {
		return nil, "", fmt.Errorf("%w: project is required", repository.ErrInvalidProject)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.projects[name]
	if !ok {
		state = &projectState{}
		s.projects[name] = state
	}
	return state, name, nil
}

// load must run under the state's write lock.
func (s *Service) load(ctx context.Context, project string, state *projectState) error {
	set, err := s.fetch(ctx, project)
	if err != nil {
		return err
	}
	state.set = set
	state.loaded = true
	return nil
}

func (s *Service) fetch(ctx context.Context, project string) (*filter.RuleSet, error) {
	document, err := s.repo.Load(ctx, project)
	if err != nil {
		if errors.Is(err, repository.ErrFilterCollectionNotFound) {
			return filter.NewRuleSet(), nil
		}
		return nil, fmt.Errorf("failed to load filter for %s: %w", project, err)
	}

	set, err := filter.Unmarshal(document)
	if err != nil {
		if !errors.Is(err, filter.ErrSchemaValidation) {
			return nil, fmt.Errorf("failed to decode filter for %s: %w", project, err)
		}
		s.logger.Warn("saved filter failed schema validation, using an empty filter",
			zap.String("project", project), zap.Error(err))
		s.notifier.Warn(ctx, project, filter.Text(filter.MsgSchemaInvalid, project, err))
		return filter.NewRuleSet(), nil
	}
	s.logger.Debug("filter loaded", zap.String("project", project), zap.Int("rules", set.Len()))
	return set, nil
}

func (s *Service) persist(ctx context.Context, project string, set *filter.RuleSet) error {
	document, err := filter.Marshal(set)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, project, document); err != nil {
		return fmt.Errorf("failed to save filter for %s: %w", project, err)
	}
	return nil
}
