// Package registry tracks known workers, the capabilities they advertise and
// their status lifecycle.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/contentmesh/internal/events"
	"go.uber.org/zap"
)

// Source is the message source used for registry announcements.
const Source = "registry"

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentExists   = errors.New("agent already registered")
	ErrAgentNotReady = errors.New("agent not ready")
)

// Status is a worker's lifecycle state.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusBusy         Status = "BUSY"
	StatusError        Status = "ERROR"
	StatusOffline      Status = "OFFLINE"
)

// Capability is a unit of functionality a worker advertises. InputTypes and
// OutputTypes are descriptive only.
type Capability struct {
	Name        string
	Description string
	InputTypes  []string
	OutputTypes []string
}

// Record is the registry's view of one worker.
type Record struct {
	ID            string
	Type          string
	Capabilities  []Capability
	Status        Status
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Metadata      map[string]string
}

// HasCapability reports whether the worker advertises name.
func (r Record) HasCapability(name string) bool {
	for _, c := range r.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// CapabilityNames returns the advertised capability names.
func (r Record) CapabilityNames() []string {
	names := make([]string, len(r.Capabilities))
	for i, c := range r.Capabilities {
		names[i] = c.Name
	}
	return names
}

// Stats summarizes the registry.
type Stats struct {
	Total        int
	ByStatus     map[Status]int
	Capabilities map[string]int
}

// Registry is the single owner of worker records. All lookups return copies in
// registration order.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Record
	order  []string
	index  map[string][]string // capability -> worker ids, registration order

	bus    *events.Bus
	logger *zap.Logger
}

// New creates a registry that announces changes on bus.
func New(bus *events.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]*Record),
		index:  make(map[string][]string),
		bus:    bus,
		logger: logger.Named("registry"),
	}
}

// Register adds a worker in INITIALIZING status and publishes agent.registered.
func (r *Registry) Register(id, typ string, caps []Capability, metadata map[string]string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return Record{}, fmt.Errorf("register %q: %w", id, ErrAgentExists)
	}

	now := time.Now()
	rec := &Record{
		ID:            id,
		Type:          typ,
		Capabilities:  cloneCapabilities(caps),
		Status:        StatusInitializing,
		RegisteredAt:  now,
		LastHeartbeat: now,
		Metadata:      cloneMetadata(metadata),
	}
	r.agents[id] = rec
	r.order = append(r.order, id)
	for _, c := range rec.Capabilities {
		r.index[c.Name] = append(r.index[c.Name], id)
	}

	r.logger.Debug("agent registered", zap.String("agent", id), zap.Strings("capabilities", rec.CapabilityNames()))
	r.bus.Publish(Source, events.TopicAgentRegistered, events.AgentRegistered{
		AgentID:      id,
		Type:         typ,
		Capabilities: rec.CapabilityNames(),
	})
	return cloneRecord(rec), nil
}

// Unregister removes a worker and drops it from the capability index.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.agents[id]
	if !exists {
		return false
	}
	for _, c := range rec.Capabilities {
		r.index[c.Name] = without(r.index[c.Name], id)
		if len(r.index[c.Name]) == 0 {
			delete(r.index, c.Name)
		}
	}
	r.order = without(r.order, id)
	delete(r.agents, id)
	return true
}

// UpdateStatus sets a worker's status. Transitions to READY publish agent.ready.
func (r *Registry) UpdateStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("update status of %q: %w", id, ErrAgentNotFound)
	}
	prev := rec.Status
	rec.Status = status
	rec.LastHeartbeat = time.Now()

	if prev != status {
		r.logger.Debug("status changed", zap.String("agent", id), zap.String("from", string(prev)), zap.String("to", string(status)))
	}
	if status == StatusReady {
		r.bus.Publish(Source, events.TopicAgentReady, events.AgentReady{AgentID: id})
	}
	return nil
}

// Heartbeat refreshes a worker's liveness timestamp.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("heartbeat %q: %w", id, ErrAgentNotFound)
	}
	rec.LastHeartbeat = time.Now()
	return nil
}

// Acquire atomically flips a READY worker to BUSY.
func (r *Registry) Acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("acquire %q: %w", id, ErrAgentNotFound)
	}
	if rec.Status != StatusReady {
		return fmt.Errorf("acquire %q in status %s: %w", id, rec.Status, ErrAgentNotReady)
	}
	rec.Status = StatusBusy
	return nil
}

// AcquireFirstReady flips the first READY worker advertising capability to BUSY
// and returns it. First means registration order.
func (r *Registry) AcquireFirstReady(capability string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.index[capability] {
		rec := r.agents[id]
		if rec.Status == StatusReady {
			rec.Status = StatusBusy
			return cloneRecord(rec), true
		}
	}
	return Record{}, false
}

// Get returns a worker by id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.agents[id]
	if !exists {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// List returns every worker.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneRecord(r.agents[id]))
	}
	return out
}

// FindByCapability returns every worker advertising name.
func (r *Registry) FindByCapability(name string) []Record {
	return r.find(name, false)
}

// FindReadyByCapability returns the READY workers advertising name.
func (r *Registry) FindReadyByCapability(name string) []Record {
	return r.find(name, true)
}

func (r *Registry) find(name string, readyOnly bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Record{}
	for _, id := range r.index[name] {
		rec := r.agents[id]
		if readyOnly && rec.Status != StatusReady {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out
}

// Stats returns counts by status and by capability.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:        len(r.agents),
		ByStatus:     make(map[Status]int),
		Capabilities: make(map[string]int, len(r.index)),
	}
	for _, rec := range r.agents {
		s.ByStatus[rec.Status]++
	}
	for name, ids := range r.index {
		s.Capabilities[name] = len(ids)
	}
	return s
}

// Reset forgets every worker.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents = make(map[string]*Record)
	r.index = make(map[string][]string)
	r.order = nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneRecord(rec *Record) Record {
	cp := *rec
	cp.Capabilities = cloneCapabilities(rec.Capabilities)
	cp.Metadata = cloneMetadata(rec.Metadata)
	return cp
}

func cloneCapabilities(caps []Capability) []Capability {
	if caps == nil {
		return nil
	}
	out := make([]Capability, len(caps))
	for i, c := range caps {
		c.InputTypes = append([]string(nil), c.InputTypes...)
		c.OutputTypes = append([]string(nil), c.OutputTypes...)
		out[i] = c
	}
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
