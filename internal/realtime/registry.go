package realtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is one connected client. Send must not block: a subscriber
// that cannot take the event returns an error and is dropped from the room.
type Subscriber interface {
	ID() string
	Send(Event) error
}

type room struct {
	mu      sync.Mutex
	members map[string]Subscriber
}

// Registry tracks room membership and driver presence for the process.
// Lock order is Registry.mu before room.mu.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	drivers     map[string]int
	log         zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		drivers:     make(map[string]int),
		log:         log,
	}
}

func (r *Registry) Join(sub Subscriber, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{members: make(map[string]Subscriber)}
		r.rooms[name] = rm
	}
	rm.mu.Lock()
	rm.members[sub.ID()] = sub
	rm.mu.Unlock()

	joined, ok := r.memberships[sub.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[sub.ID()] = joined
	}
	joined[name] = struct{}{}

	r.log.Debug().Str("subscriber", sub.ID()).Str("room", name).Msg("joined room")
}

func (r *Registry) Leave(subID string, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(subID, name)
}

// LeaveAll removes the subscriber from every room it joined and returns
// the room names.
func (r *Registry) LeaveAll(subID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.memberships[subID]))
	for name := range r.memberships[subID] {
		names = append(names, name)
	}
	for _, name := range names {
		r.leaveLocked(subID, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) leaveLocked(subID string, name string) {
	if rm, ok := r.rooms[name]; ok {
		rm.mu.Lock()
		delete(rm.members, subID)
		empty := len(rm.members) == 0
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, name)
		}
	}

	if joined, ok := r.memberships[subID]; ok {
		delete(joined, name)
		if len(joined) == 0 {
			delete(r.memberships, subID)
		}
	}

	r.log.Debug().Str("subscriber", subID).Str("room", name).Msg("left room")
}

// Publish delivers ev to every member of the room. Publishes to one room
// are serialized, so each member sees them in publish order. Members whose
// Send fails are removed; the counts of delivered and dropped members are
// returned.
func (r *Registry) Publish(name string, ev Event) (delivered int, dropped int) {
	r.mu.RLock()
	rm, ok := r.rooms[name]
	r.mu.RUnlock()
	if !ok {
		return 0, 0
	}

	var failed []string
	rm.mu.Lock()
	for id, sub := range rm.members {
		if err := sub.Send(ev); err != nil {
			failed = append(failed, id)
			r.log.Warn().Err(err).Str("subscriber", id).Str("room", name).Msg("dropping subscriber")
			continue
		}
		delivered++
	}
	rm.mu.Unlock()

	for _, id := range failed {
		r.Leave(id, name)
	}
	return delivered, len(failed)
}

func (r *Registry) RoomSize(name string) int {
	r.mu.RLock()
	rm, ok := r.rooms[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) Rooms(subID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.memberships[subID]))
	for name := range r.memberships[subID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DriverOnline counts a new connection for the driver and reports whether
// it is the first one.
func (r *Registry) DriverOnline(driverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[driverID]++
	return r.drivers[driverID] == 1
}

// DriverOffline releases one connection and reports whether it was the last.
func (r *Registry) DriverOffline(driverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.drivers[driverID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.drivers, driverID)
		return true
	}
	r.drivers[driverID] = n - 1
	return false
}

func (r *Registry) ActiveDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
