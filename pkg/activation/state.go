package activation

/*
State maps node ids onto non-negative energy for one spreading activation.
It remembers the order in which ids were first seen, which is how ties are
broken when results are ranked. A State is not safe for concurrent use.
*/
type State struct {
	energy map[string]float64
	order  []string
}

func NewState() *State {
	return &State{energy: make(map[string]float64)}
}

// Set replaces the energy of id.
func (state *State) Set(id string, energy float64) {
	if _, ok := state.energy[id]; !ok {
		state.order = append(state.order, id)
	}

	state.energy[id] = max(0, energy)
}

// Add accumulates energy onto id.
func (state *State) Add(id string, energy float64) {
	if _, ok := state.energy[id]; !ok {
		state.order = append(state.order, id)
	}

	state.energy[id] = max(0, state.energy[id]+energy)
}

func (state *State) Energy(id string) (float64, bool) {
	energy, ok := state.energy[id]
	return energy, ok
}

func (state *State) Len() int {
	return len(state.energy)
}

// IDs returns every id in discovery order.
func (state *State) IDs() []string {
	return append([]string(nil), state.order...)
}

func (state *State) Total() float64 {
	var total float64

	for _, energy := range state.energy {
		total += energy
	}

	return total
}

/*
Reward boosts each node of a successful path by reward*(1-i*0.1), so earlier
nodes gain more. Nodes missing from the state are left alone; a reward never
brings a node back.
*/
func (state *State) Reward(path []string, reward float64) {
	for i, id := range path {
		if _, ok := state.energy[id]; !ok {
			continue
		}

		state.energy[id] = max(0, state.energy[id]+reward*(1.0-float64(i)*0.1))
	}
}

func (state *State) Clone() *State {
	out := &State{
		energy: make(map[string]float64, len(state.energy)),
		order:  append([]string(nil), state.order...),
	}

	for id, energy := range state.energy {
		out.energy[id] = energy
	}

	return out
}
