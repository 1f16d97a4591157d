package rooms

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erikmillergalow/impermachat/internal/metrics"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

// DefaultConnectExpiry is the lifetime granted to a room created implicitly
// by a stream subscribe instead of the landing form.
const DefaultConnectExpiry = 30 * time.Second

// janitorInterval is how often expirations are checked and countdown updates
// broadcast.
const janitorInterval = 1 * time.Second

// ErrRoomNotFound reports a lookup for a room that expired or never existed.
var ErrRoomNotFound = errors.New("room not found")

// Registry owns every live room. A single mutex guards the map and all room
// state: WithRoom callbacks get exclusive access and must not block. Socket
// writes and template renders belong outside the lock.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	logger *utils.Logger

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates an empty registry. Call Start to run the expiration
// janitor.
func NewRegistry(logger *utils.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// GetOrCreate returns the room, creating it with expiration now+defaultExpiry
// when absent. The expiration of an existing room is never touched.
func (reg *Registry) GetOrCreate(roomID string, defaultExpiry time.Duration) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	room := newRoom(time.Now().Add(defaultExpiry))
	reg.rooms[roomID] = room
	metrics.ActiveRooms.Inc()
	return room
}

// Has reports whether a room currently exists.
func (reg *Registry) Has(roomID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.rooms[roomID]
	return ok
}

// WithRoom runs fn with exclusive access to the room's state. It returns
// ErrRoomNotFound when the room expired or never existed.
func (reg *Registry) WithRoom(roomID string, fn func(*Room)) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	fn(room)
	return nil
}

// Remove deletes a room and closes its bus, ending its streams. Removing a
// missing room is a no-op.
func (reg *Registry) Remove(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.removeLocked(roomID)
}

func (reg *Registry) removeLocked(roomID string) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return
	}
	delete(reg.rooms, roomID)
	room.bus.Close()
	metrics.ActiveRooms.Dec()
}

// Start runs the janitor until ctx is cancelled or Stop is called. Every tick
// broadcasts a countdown update to each live room and shuts down the ones
// whose lifetime elapsed.
func (reg *Registry) Start(ctx context.Context) {
	defer close(reg.done)

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reg.quit:
			return
		case <-ticker.C:
			reg.sweep(time.Now())
		}
	}
}

// sweep publishes UpdateTime to every live room and ShutdownRoom to expired
// ones, then removes the expired rooms. Publish failures are ignored; a room
// with no subscribers is legal.
func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var expired []string
	for roomID, room := range reg.rooms {
		if room.Expired(now) {
			_ = room.bus.Publish(ActionEvent{ConnectionID: SystemConnectionID, Action: ActionShutdownRoom})
			expired = append(expired, roomID)
			continue
		}
		_ = room.bus.Publish(ActionEvent{ConnectionID: SystemConnectionID, Action: ActionUpdateTime})
	}

	for _, roomID := range expired {
		reg.removeLocked(roomID)
		metrics.RoomsExpired.Inc()
		reg.logger.Info(context.Background(), "room %s expired", roomID)
	}
}

// Stop cancels the janitor and closes every room's bus, ending all streams.
func (reg *Registry) Stop() {
	reg.stopOnce.Do(func() {
		close(reg.quit)
	})

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, room := range reg.rooms {
		room.bus.Close()
	}
}
