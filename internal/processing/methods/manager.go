package methods

import (
	"fmt"
	"sort"
	"sync"

	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"
)

const DefaultMethod = Sketch

type Manager struct {
	methods map[string]Method
	mu      sync.RWMutex
}

// NewManager returns a manager with every built-in preset registered.
func NewManager() *Manager {
	manager := &Manager{
		methods: make(map[string]Method),
	}

	for _, method := range builtins() {
		manager.methods[method.Name] = method
	}

	return manager
}

func (m *Manager) Register(method Method) error {
	if method.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMethod)
	}
	if method.Build == nil {
		return fmt.Errorf("%w: %s has no builder", ErrInvalidMethod, method.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.methods[method.Name]; exists {
		return fmt.Errorf("%w: %s already registered", ErrInvalidMethod, method.Name)
	}

	m.methods[method.Name] = method
	return nil
}

func (m *Manager) Get(name string) (Method, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if method, exists := m.methods[name]; exists {
		return method, nil
	}

	return Method{}, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
}

// Names returns registered method names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.methods))
	for name := range m.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (m *Manager) Describe() []Info {
	names := m.Names()
	infos := make([]Info, 0, len(names))

	for _, name := range names {
		method, err := m.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:              method.Name,
			Description:       method.Description,
			RequiresSegmenter: method.RequiresSegmenter,
			Steps:             method.Build(BuildOptions{Params: processing.DefaultParams()}).StepNames(),
		})
	}

	return infos
}

// Validate checks that name exists and params are in range.
func (m *Manager) Validate(name string, params processing.Params) error {
	if _, err := m.Get(name); err != nil {
		return err
	}
	return params.Validate()
}

func (m *Manager) Default() string {
	return DefaultMethod
}

// Build validates and assembles the chain for name.
func (m *Manager) Build(name string, opts BuildOptions) (*chain.Chain, error) {
	method, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if method.RequiresSegmenter && opts.Masks == nil {
		return nil, fmt.Errorf("%w: %s", ErrSegmenterRequired, name)
	}

	return method.Build(opts), nil
}
