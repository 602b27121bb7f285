// Package topology owns the canonical in-memory network graph for the active
// project: buses, branches, load allocations, component placements, and the
// last power-flow result.
//
// Every mutation validates locally, delegates the write to the remote
// persistence collaborator, and only mirrors the change into local state once
// the collaborator accepted it. Readers never see a half-applied mutation;
// they take immutable snapshots instead of holding references into the live
// aggregate.
package topology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/splx7/gridflow-sub000/api/schemas"
	"go.uber.org/zap"
)

var (
	ErrBusNotFound        = errors.New("bus not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrAllocationNotFound = errors.New("load allocation not found")
	ErrComponentNotFound  = errors.New("component not found")
	ErrSelfLoop           = errors.New("branch endpoints must be distinct buses")
	ErrEndpointMissing    = errors.New("branch endpoint references a missing bus")
	ErrNoSlackBus         = errors.New("topology has no slack bus")
	ErrUnknownField       = errors.New("unknown field for targeted update")
)

// ChangeKind labels the structural mutation that produced a change event.
type ChangeKind string

const (
	ChangeBusAdded        ChangeKind = "bus_added"
	ChangeBusUpdated      ChangeKind = "bus_updated"
	ChangeBusRemoved      ChangeKind = "bus_removed"
	ChangeBranchAdded     ChangeKind = "branch_added"
	ChangeBranchUpdated   ChangeKind = "branch_updated"
	ChangeBranchRemoved   ChangeKind = "branch_removed"
	ChangeAllocAdded      ChangeKind = "allocation_added"
	ChangeAllocRemoved    ChangeKind = "allocation_removed"
	ChangeComponentMoved  ChangeKind = "component_moved"
	ChangeBulkReplacement ChangeKind = "bulk_replacement"
)

// Change is published to subscribers exactly once per genuine mutation.
// Consumers compare Signature against the last one they acted on; equal
// signatures mean nothing worth re-solving happened.
type Change struct {
	Kind      ChangeKind
	TargetID  string
	Signature string
}

// Snapshot is an immutable copy of the aggregate, safe to hold across
// subsequent mutations. Slices are sorted by id for deterministic iteration.
type Snapshot struct {
	Buses       []schemas.Bus
	Branches    []schemas.Branch
	Allocations []schemas.LoadAllocation
	Components  []schemas.Component
	Result      *schemas.PowerFlowResult
}

// Store is the single mutable owner of topology state for one project.
type Store struct {
	projectID string
	api       schemas.TopologyAPI
	log       *zap.Logger

	mu         sync.RWMutex
	buses      map[string]schemas.Bus
	branches   map[string]schemas.Branch
	allocs     map[string]schemas.LoadAllocation
	components map[string]schemas.Component
	result     *schemas.PowerFlowResult

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// New creates an empty store bound to a project and its persistence
// collaborator.
func New(projectID string, api schemas.TopologyAPI, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		projectID:  projectID,
		api:        api,
		log:        logger.Named("topology"),
		buses:      make(map[string]schemas.Bus),
		branches:   make(map[string]schemas.Branch),
		allocs:     make(map[string]schemas.LoadAllocation),
		components: make(map[string]schemas.Component),
		subs:       make(map[int]chan Change),
	}
}

// ProjectID returns the project this store is bound to.
func (s *Store) ProjectID() string { return s.projectID }

// Load replaces local state with a full fetch from the persistence
// collaborator. Used at startup and after bulk operations that may have
// touched entities outside the topology tables.
func (s *Store) Load(ctx context.Context) error {
	buses, err := s.api.ListBuses(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("list buses: %w", err)
	}
	branches, err := s.api.ListBranches(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}
	allocs, err := s.api.ListLoadAllocations(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("list load allocations: %w", err)
	}
	components, err := s.api.ListComponents(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("list components: %w", err)
	}

	s.mu.Lock()
	s.buses = make(map[string]schemas.Bus, len(buses))
	for _, b := range buses {
		s.buses[b.ID] = b
	}
	s.branches = make(map[string]schemas.Branch, len(branches))
	for _, br := range branches {
		s.branches[br.ID] = br
	}
	s.allocs = make(map[string]schemas.LoadAllocation, len(allocs))
	for _, a := range allocs {
		s.allocs[a.ID] = a
	}
	s.components = make(map[string]schemas.Component, len(components))
	for _, c := range components {
		s.components[c.ID] = c
	}
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.log.Info("Topology loaded",
		zap.Int("buses", len(buses)),
		zap.Int("branches", len(branches)),
		zap.Int("allocations", len(allocs)),
		zap.String("signature", sig))
	s.notify(Change{Kind: ChangeBulkReplacement, Signature: sig})
	return nil
}

// -- Bus Operations --

// AddBus persists a new bus and mirrors it locally. A missing id is filled in
// before the write so the collaborator and the local aggregate agree.
func (s *Store) AddBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	if bus.ID == "" {
		bus.ID = uuid.NewString()
	}
	bus.ProjectID = s.projectID
	if bus.NominalVoltageKV <= 0 {
		return schemas.Bus{}, fmt.Errorf("bus %q: nominal voltage must be positive, got %v", bus.Name, bus.NominalVoltageKV)
	}

	created, err := s.api.CreateBus(ctx, bus)
	if err != nil {
		return schemas.Bus{}, fmt.Errorf("create bus: %w", err)
	}

	s.mu.Lock()
	s.buses[created.ID] = created
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.log.Debug("Bus added", zap.String("bus_id", created.ID), zap.Float64("kv", created.NominalVoltageKV))
	s.notify(Change{Kind: ChangeBusAdded, TargetID: created.ID, Signature: sig})
	return created, nil
}

// UpdateBus persists a full-record update for an existing bus and mirrors it.
func (s *Store) UpdateBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	s.mu.RLock()
	_, ok := s.buses[bus.ID]
	s.mu.RUnlock()
	if !ok {
		return schemas.Bus{}, fmt.Errorf("update bus %s: %w", bus.ID, ErrBusNotFound)
	}
	bus.ProjectID = s.projectID

	updated, err := s.api.UpdateBus(ctx, bus)
	if err != nil {
		return schemas.Bus{}, fmt.Errorf("update bus: %w", err)
	}

	s.mu.Lock()
	s.buses[updated.ID] = updated
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeBusUpdated, TargetID: updated.ID, Signature: sig})
	return updated, nil
}

// SetBusPosition writes a dragged coordinate back through the regular update
// path so it permanently overrides auto-layout. A nil position clears the
// persisted coordinate, handing the bus back to the layout engine.
func (s *Store) SetBusPosition(ctx context.Context, busID string, pos *schemas.Position) (schemas.Bus, error) {
	s.mu.RLock()
	bus, ok := s.buses[busID]
	s.mu.RUnlock()
	if !ok {
		return schemas.Bus{}, fmt.Errorf("position bus %s: %w", busID, ErrBusNotFound)
	}
	if pos != nil {
		p := *pos
		bus.Position = &p
	} else {
		bus.Position = nil
	}
	return s.UpdateBus(ctx, bus)
}

// RemoveBus deletes a bus and, atomically with it, every branch incident to
// it. No reader can observe a dangling branch endpoint.
func (s *Store) RemoveBus(ctx context.Context, busID string) error {
	s.mu.RLock()
	_, ok := s.buses[busID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("remove bus %s: %w", busID, ErrBusNotFound)
	}

	if err := s.api.DeleteBus(ctx, s.projectID, busID); err != nil {
		return fmt.Errorf("delete bus: %w", err)
	}

	s.mu.Lock()
	delete(s.buses, busID)
	var dropped int
	for id, br := range s.branches {
		if br.FromBusID == busID || br.ToBusID == busID {
			delete(s.branches, id)
			dropped++
		}
	}
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.log.Debug("Bus removed", zap.String("bus_id", busID), zap.Int("cascaded_branches", dropped))
	s.notify(Change{Kind: ChangeBusRemoved, TargetID: busID, Signature: sig})
	return nil
}

// -- Branch Operations --

// AddBranch validates endpoints against the local graph, persists the branch,
// and mirrors it.
func (s *Store) AddBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	branch.ProjectID = s.projectID
	if branch.FromBusID == branch.ToBusID {
		return schemas.Branch{}, fmt.Errorf("branch %q: %w", branch.Name, ErrSelfLoop)
	}

	s.mu.RLock()
	_, fromOK := s.buses[branch.FromBusID]
	_, toOK := s.buses[branch.ToBusID]
	s.mu.RUnlock()
	if !fromOK || !toOK {
		return schemas.Branch{}, fmt.Errorf("branch %q: %w", branch.Name, ErrEndpointMissing)
	}

	created, err := s.api.CreateBranch(ctx, branch)
	if err != nil {
		return schemas.Branch{}, fmt.Errorf("create branch: %w", err)
	}

	s.mu.Lock()
	s.branches[created.ID] = created
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.log.Debug("Branch added",
		zap.String("branch_id", created.ID),
		zap.String("from", created.FromBusID),
		zap.String("to", created.ToBusID))
	s.notify(Change{Kind: ChangeBranchAdded, TargetID: created.ID, Signature: sig})
	return created, nil
}

// UpdateBranch persists a full-record update for an existing branch.
func (s *Store) UpdateBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	s.mu.RLock()
	_, ok := s.branches[branch.ID]
	s.mu.RUnlock()
	if !ok {
		return schemas.Branch{}, fmt.Errorf("update branch %s: %w", branch.ID, ErrBranchNotFound)
	}
	if branch.FromBusID == branch.ToBusID {
		return schemas.Branch{}, fmt.Errorf("branch %s: %w", branch.ID, ErrSelfLoop)
	}
	branch.ProjectID = s.projectID

	updated, err := s.api.UpdateBranch(ctx, branch)
	if err != nil {
		return schemas.Branch{}, fmt.Errorf("update branch: %w", err)
	}

	s.mu.Lock()
	s.branches[updated.ID] = updated
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeBranchUpdated, TargetID: updated.ID, Signature: sig})
	return updated, nil
}

// RemoveBranch deletes a single branch.
func (s *Store) RemoveBranch(ctx context.Context, branchID string) error {
	s.mu.RLock()
	_, ok := s.branches[branchID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("remove branch %s: %w", branchID, ErrBranchNotFound)
	}

	if err := s.api.DeleteBranch(ctx, s.projectID, branchID); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}

	s.mu.Lock()
	delete(s.branches, branchID)
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeBranchRemoved, TargetID: branchID, Signature: sig})
	return nil
}

// -- Load Allocation Operations --

// AddLoadAllocation validates the target bus and the allocation bounds, then
// persists and mirrors.
func (s *Store) AddLoadAllocation(ctx context.Context, alloc schemas.LoadAllocation) (schemas.LoadAllocation, error) {
	if alloc.ID == "" {
		alloc.ID = uuid.NewString()
	}
	alloc.ProjectID = s.projectID
	if alloc.Fraction < 0 || alloc.Fraction > 1 {
		return schemas.LoadAllocation{}, fmt.Errorf("allocation %q: fraction must be within [0,1], got %v", alloc.Name, alloc.Fraction)
	}
	if alloc.PowerFactor <= 0 || alloc.PowerFactor > 1 {
		return schemas.LoadAllocation{}, fmt.Errorf("allocation %q: power factor must be within (0,1], got %v", alloc.Name, alloc.PowerFactor)
	}

	s.mu.RLock()
	_, ok := s.buses[alloc.BusID]
	s.mu.RUnlock()
	if !ok {
		return schemas.LoadAllocation{}, fmt.Errorf("allocation %q: %w", alloc.Name, ErrBusNotFound)
	}

	created, err := s.api.CreateLoadAllocation(ctx, alloc)
	if err != nil {
		return schemas.LoadAllocation{}, fmt.Errorf("create load allocation: %w", err)
	}

	s.mu.Lock()
	s.allocs[created.ID] = created
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAllocAdded, TargetID: created.ID, Signature: sig})
	return created, nil
}

// RemoveLoadAllocation deletes a single allocation.
func (s *Store) RemoveLoadAllocation(ctx context.Context, allocID string) error {
	s.mu.RLock()
	_, ok := s.allocs[allocID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("remove allocation %s: %w", allocID, ErrAllocationNotFound)
	}

	if err := s.api.DeleteLoadAllocation(ctx, s.projectID, allocID); err != nil {
		return fmt.Errorf("delete load allocation: %w", err)
	}

	s.mu.Lock()
	delete(s.allocs, allocID)
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAllocRemoved, TargetID: allocID, Signature: sig})
	return nil
}

// -- Component Placement --

// SetComponentBus re-assigns a component onto a bus (or off the graph with an
// empty busID). Placement is part of the structure signature, so this fires
// the same recompute signal as a bus or branch edit.
func (s *Store) SetComponentBus(ctx context.Context, componentID, busID string) (schemas.Component, error) {
	s.mu.RLock()
	component, ok := s.components[componentID]
	s.mu.RUnlock()
	if !ok {
		return schemas.Component{}, fmt.Errorf("component %s: %w", componentID, ErrComponentNotFound)
	}
	if busID != "" {
		s.mu.RLock()
		_, busOK := s.buses[busID]
		s.mu.RUnlock()
		if !busOK {
			return schemas.Component{}, fmt.Errorf("component %s: %w", componentID, ErrBusNotFound)
		}
	}
	component.BusID = busID

	updated, err := s.api.UpdateComponent(ctx, component)
	if err != nil {
		return schemas.Component{}, fmt.Errorf("update component: %w", err)
	}

	s.mu.Lock()
	s.components[updated.ID] = updated
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeComponentMoved, TargetID: updated.ID, Signature: sig})
	return updated, nil
}

// -- Bulk Replacement --

// ReplaceAll swaps the entire local graph for the given set, validating
// referential integrity first. The collaborator has already persisted the set
// (auto-generation), so no delegation happens here.
func (s *Store) ReplaceAll(buses []schemas.Bus, branches []schemas.Branch, allocs []schemas.LoadAllocation) error {
	byID := make(map[string]struct{}, len(buses))
	for _, b := range buses {
		byID[b.ID] = struct{}{}
	}
	for _, br := range branches {
		if br.FromBusID == br.ToBusID {
			return fmt.Errorf("branch %s: %w", br.ID, ErrSelfLoop)
		}
		if _, ok := byID[br.FromBusID]; !ok {
			return fmt.Errorf("branch %s from=%s: %w", br.ID, br.FromBusID, ErrEndpointMissing)
		}
		if _, ok := byID[br.ToBusID]; !ok {
			return fmt.Errorf("branch %s to=%s: %w", br.ID, br.ToBusID, ErrEndpointMissing)
		}
	}
	for _, a := range allocs {
		if _, ok := byID[a.BusID]; !ok {
			return fmt.Errorf("allocation %s bus=%s: %w", a.ID, a.BusID, ErrBusNotFound)
		}
	}

	s.mu.Lock()
	s.buses = make(map[string]schemas.Bus, len(buses))
	for _, b := range buses {
		s.buses[b.ID] = b
	}
	s.branches = make(map[string]schemas.Branch, len(branches))
	for _, br := range branches {
		s.branches[br.ID] = br
	}
	s.allocs = make(map[string]schemas.LoadAllocation, len(allocs))
	for _, a := range allocs {
		s.allocs[a.ID] = a
	}
	s.result = nil
	sig := s.signatureLocked()
	s.mu.Unlock()

	s.log.Info("Topology replaced", zap.Int("buses", len(buses)), zap.Int("branches", len(branches)))
	s.notify(Change{Kind: ChangeBulkReplacement, Signature: sig})
	return nil
}

// SetComponents replaces the mirrored component list after an external
// re-fetch. Placement changes feed the structure signature, so subscribers
// are notified.
func (s *Store) SetComponents(components []schemas.Component) {
	s.mu.Lock()
	s.components = make(map[string]schemas.Component, len(components))
	for _, c := range components {
		s.components[c.ID] = c
	}
	sig := s.signatureLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeComponentMoved, Signature: sig})
}

// -- Results --

// SetResult replaces the stored power-flow result wholesale. A nil result
// clears it.
func (s *Store) SetResult(result *schemas.PowerFlowResult) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

// Result returns the last stored power-flow result, or nil if none exists.
func (s *Store) Result() *schemas.PowerFlowResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// -- Reads --

// Snapshot returns an immutable, sorted copy of the aggregate.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Buses:       make([]schemas.Bus, 0, len(s.buses)),
		Branches:    make([]schemas.Branch, 0, len(s.branches)),
		Allocations: make([]schemas.LoadAllocation, 0, len(s.allocs)),
		Components:  make([]schemas.Component, 0, len(s.components)),
	}
	for _, b := range s.buses {
		if b.Position != nil {
			p := *b.Position
			b.Position = &p
		}
		if b.Slack != nil {
			sc := *b.Slack
			b.Slack = &sc
		}
		snap.Buses = append(snap.Buses, b)
	}
	for _, br := range s.branches {
		snap.Branches = append(snap.Branches, br)
	}
	for _, a := range s.allocs {
		snap.Allocations = append(snap.Allocations, a)
	}
	for _, c := range s.components {
		snap.Components = append(snap.Components, c)
	}
	sort.Slice(snap.Buses, func(i, j int) bool { return snap.Buses[i].ID < snap.Buses[j].ID })
	sort.Slice(snap.Branches, func(i, j int) bool { return snap.Branches[i].ID < snap.Branches[j].ID })
	sort.Slice(snap.Allocations, func(i, j int) bool { return snap.Allocations[i].ID < snap.Allocations[j].ID })
	sort.Slice(snap.Components, func(i, j int) bool { return snap.Components[i].ID < snap.Components[j].ID })

	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// BusCount returns the number of buses currently in the graph.
func (s *Store) BusCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buses)
}

// GetBus returns a bus by id.
func (s *Store) GetBus(busID string) (schemas.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bus, ok := s.buses[busID]
	if !ok {
		return schemas.Bus{}, fmt.Errorf("bus %s: %w", busID, ErrBusNotFound)
	}
	return bus, nil
}

// GetBranch returns a branch by id.
func (s *Store) GetBranch(branchID string) (schemas.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	branch, ok := s.branches[branchID]
	if !ok {
		return schemas.Branch{}, fmt.Errorf("branch %s: %w", branchID, ErrBranchNotFound)
	}
	return branch, nil
}

// ValidateForPowerFlow fails fast on topologies the solver cannot meaningfully
// evaluate: an empty graph, a graph without a slack bus, or dangling branch
// endpoints.
func (s *Store) ValidateForPowerFlow() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.buses) == 0 {
		return fmt.Errorf("empty topology: %w", ErrNoSlackBus)
	}
	slack := 0
	for _, b := range s.buses {
		if b.Type == schemas.BusSlack {
			slack++
		}
	}
	if slack == 0 {
		return ErrNoSlackBus
	}
	for _, br := range s.branches {
		if _, ok := s.buses[br.FromBusID]; !ok {
			return fmt.Errorf("branch %s from=%s: %w", br.ID, br.FromBusID, ErrEndpointMissing)
		}
		if _, ok := s.buses[br.ToBusID]; !ok {
			return fmt.Errorf("branch %s to=%s: %w", br.ID, br.ToBusID, ErrEndpointMissing)
		}
	}
	return nil
}

// -- Subscriptions --

// Subscribe registers a change listener. The returned channel is buffered;
// events are dropped rather than blocking a mutation, which is safe because
// consumers act on the signature carried by the latest event they do see.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, 32)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Store) notify(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
			// Subscriber is behind; it will catch up from a later event.
		}
	}
}
