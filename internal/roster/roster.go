package roster

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/humanalog/markedfordeath/internal/model"
)

// Roster mirrors the participants currently connected to the host. It is fed by
// connect, disconnect and position events and read by the transfer engine.
type Roster struct {
	m       sync.Mutex
	players map[uint64]model.Participant
	seq     uint64
	now     func() time.Time
}

func New() *Roster {
	return &Roster{
		players: make(map[uint64]model.Participant),
		now:     time.Now,
	}
}

func (r *Roster) Reset() {
	r.m.Lock()
	defer r.m.Unlock()
	r.players = make(map[uint64]model.Participant)
}

// Connect adds a participant. A repeated connect for a known id updates the
// name and position but keeps the original connection order.
func (r *Roster) Connect(id uint64, name string, pos model.Position) model.Participant {
	r.m.Lock()
	defer r.m.Unlock()

	if p, ok := r.players[id]; ok {
		p.Name = name
		p.Position = pos
		r.players[id] = p
		return p
	}

	r.seq++
	p := model.Participant{
		ID:          id,
		Name:        name,
		Position:    pos,
		ConnectedAt: r.now(),
		Seq:         r.seq,
	}
	r.players[id] = p
	return p
}

// Disconnect removes a participant and reports whether it was present.
func (r *Roster) Disconnect(id uint64) bool {
	r.m.Lock()
	defer r.m.Unlock()
	_, ok := r.players[id]
	delete(r.players, id)
	return ok
}

// UpdatePosition records a participant's latest position.
func (r *Roster) UpdatePosition(id uint64, pos model.Position) bool {
	r.m.Lock()
	defer r.m.Unlock()
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.Position = pos
	r.players[id] = p
	return true
}

func (r *Roster) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.players)
}

// All returns every live participant in connection order.
func (r *Roster) All() []model.Participant {
	r.m.Lock()
	defer r.m.Unlock()
	return r.ordered()
}

func (r *Roster) ordered() []model.Participant {
	out := make([]model.Participant, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *Roster) FindByID(id uint64) (model.Participant, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	if p, ok := r.players[id]; ok {
		return p, true
	}
	return model.Participant{}, false
}

// FindByName matches display names case-insensitively. When several match,
// the one that connected first wins.
func (r *Roster) FindByName(name string) (model.Participant, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	for _, p := range r.ordered() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.Participant{}, false
}
