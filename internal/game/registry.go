package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"roulette-engine/internal/game/roulette"
)

var (
	// ErrAlreadySeated is returned when a player joins a second room while
	// still seated in another.
	ErrAlreadySeated = errors.New("player is already seated at another table")
	// ErrRoomFull is returned when a room has no free seats.
	ErrRoomFull = errors.New("room is full")
	// ErrNotSeated is returned for players without a seat.
	ErrNotSeated = errors.New("player is not seated")
	// ErrInvalidRoom is returned for empty room IDs.
	ErrInvalidRoom = errors.New("room id cannot be empty")
)

// RoomInfo summarizes one open room.
type RoomInfo struct {
	RoomID      string         `json:"roomId"`
	Phase       roulette.Phase `json:"phase"`
	PlayerCount int            `json:"playerCount"`
}

// Registry is the lobby. It creates tables on demand, keeps every player at
// no more than one table, and closes tables once their last player is
// released. Each table's run loop is supervised by an errgroup.
type Registry struct {
	factory    TableFactory
	maxPlayers int

	mu     sync.RWMutex
	tables map[string]Table
	seats  map[string]string // player ID -> room ID

	group  *errgroup.Group
	runCtx context.Context
}

// NewRegistry creates a lobby whose tables run until ctx is cancelled.
// maxPlayers <= 0 means rooms are unbounded.
func NewRegistry(ctx context.Context, factory TableFactory, maxPlayers int) *Registry {
	group, runCtx := errgroup.WithContext(ctx)
	return &Registry{
		factory:    factory,
		maxPlayers: maxPlayers,
		tables:     make(map[string]Table),
		seats:      make(map[string]string),
		group:      group,
		runCtx:     runCtx,
	}
}

// Join seats playerID in roomID, creating the room if needed, and returns the
// table with the player's snapshot. Rejoining the same room reconnects.
func (r *Registry) Join(roomID, playerID, name string, balance int64) (Table, roulette.PlayerSnapshot, error) {
	if roomID == "" {
		return nil, roulette.PlayerSnapshot{}, ErrInvalidRoom
	}

	r.mu.Lock()
	current, seated := r.seats[playerID]
	if seated && current != roomID {
		r.mu.Unlock()
		return nil, roulette.PlayerSnapshot{}, fmt.Errorf("%w: %s", ErrAlreadySeated, current)
	}

	t, ok := r.tables[roomID]
	if !ok {
		t = r.factory(roomID, r.release)
		r.tables[roomID] = t
		r.startLocked(t)
		log.Info().Str("room_id", roomID).Msg("Table opened")
	} else if !seated && r.maxPlayers > 0 && r.occupancyLocked(roomID) >= r.maxPlayers {
		r.mu.Unlock()
		return nil, roulette.PlayerSnapshot{}, ErrRoomFull
	}
	r.seats[playerID] = roomID
	r.mu.Unlock()

	// The table may fire release hooks, which take the registry lock.
	snap, err := t.Join(playerID, name, balance)
	if err != nil {
		if !seated {
			r.release(roomID, playerID)
		}
		return nil, roulette.PlayerSnapshot{}, err
	}
	return t, snap, nil
}

// Leave disconnects playerID from their table.
func (r *Registry) Leave(playerID string) error {
	r.mu.RLock()
	roomID, ok := r.seats[playerID]
	t := r.tables[roomID]
	r.mu.RUnlock()

	if !ok || t == nil {
		return ErrNotSeated
	}
	if _, err := t.Leave(playerID); err != nil {
		if errors.Is(err, roulette.ErrPlayerNotFound) {
			r.release(roomID, playerID)
		}
		return err
	}
	return nil
}

// TableFor returns the table playerID is seated at.
func (r *Registry) TableFor(playerID string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.seats[playerID]
	if !ok {
		return nil, false
	}
	t, ok := r.tables[roomID]
	return t, ok
}

// Rooms lists open rooms sorted by ID.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	tables := make([]Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.RUnlock()

	rooms := make([]RoomInfo, 0, len(tables))
	for _, t := range tables {
		state := t.State()
		rooms = append(rooms, RoomInfo{RoomID: t.ID(), Phase: state.Phase, PlayerCount: state.PlayerCount})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms
}

// Count returns the number of open rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Close stops every table and waits for their run loops to exit.
func (r *Registry) Close() error {
	r.mu.Lock()
	tables := r.tables
	r.tables = make(map[string]Table)
	r.seats = make(map[string]string)
	r.mu.Unlock()

	for _, t := range tables {
		t.Close()
	}
	return r.Wait()
}

// Wait blocks until every table run loop has exited. Cancellation of the
// registry context is not reported as an error.
func (r *Registry) Wait() error {
	if err := r.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Registry) startLocked(t Table) {
	r.group.Go(func() error {
		if err := t.Run(r.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("table %s: %w", t.ID(), err)
		}
		return nil
	})
}

func (r *Registry) occupancyLocked(roomID string) int {
	n := 0
	for _, seat := range r.seats {
		if seat == roomID {
			n++
		}
	}
	return n
}

// release frees a player's seat and closes the room once nobody is left.
func (r *Registry) release(roomID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seats[playerID] == roomID {
		delete(r.seats, playerID)
	}

	t, ok := r.tables[roomID]
	if !ok || r.occupancyLocked(roomID) > 0 {
		return
	}
	delete(r.tables, roomID)
	t.Close()
	log.Info().Str("room_id", roomID).Msg("Table closed, no players left")
}
