package habitat

import "sort"

// PositionUndefined is assigned when an antenna pair has no mapping, e.g.
// after a missed read lets an animal appear to jump across the rig.
const PositionUndefined = "undefined"

// Topology is the static layout of the housing rig: which antenna pair maps
// to which position, which directional positions are tunnel traversals, and
// how the two directional readings of a physical tunnel collapse into one
// undirected identity. It is immutable after construction.
type Topology struct {
	pairPositions map[[2]int]string
	tunnels       map[string]string // directional position -> canonical tunnel id
	cages         []string
	antennas      map[int]bool
}

// DefaultTopology returns the standard four-cage, four-tunnel, eight-antenna
// layout. Antennas 1..8 sit pairwise at the tunnel mouths; reading the same
// antenna twice (or the two antennas flanking a cage) places the animal in
// that cage. Pairs that skip exactly one antenna are still attributed to the
// cage between them, tolerating a single missed read.
func DefaultTopology() *Topology {
	t := &Topology{
		pairPositions: map[[2]int]string{
			// Tunnel traversals, directional.
			{1, 2}: "c1_c2", {2, 1}: "c2_c1",
			{3, 4}: "c2_c3", {4, 3}: "c3_c2",
			{5, 6}: "c3_c4", {6, 5}: "c4_c3",
			{7, 8}: "c4_c1", {8, 7}: "c1_c4",
			// Cage occupancy.
			{1, 8}: "cage_1", {8, 1}: "cage_1", {1, 1}: "cage_1", {8, 8}: "cage_1",
			{2, 3}: "cage_2", {3, 2}: "cage_2", {2, 2}: "cage_2", {3, 3}: "cage_2",
			{4, 5}: "cage_3", {5, 4}: "cage_3", {4, 4}: "cage_3", {5, 5}: "cage_3",
			{6, 7}: "cage_4", {7, 6}: "cage_4", {6, 6}: "cage_4", {7, 7}: "cage_4",
			// One antenna skipped; still a cage visit.
			{8, 2}: "cage_1", {2, 8}: "cage_1", {1, 7}: "cage_1", {7, 1}: "cage_1",
			{2, 4}: "cage_2", {4, 2}: "cage_2", {3, 1}: "cage_2", {1, 3}: "cage_2",
			{4, 6}: "cage_3", {6, 4}: "cage_3", {3, 5}: "cage_3", {5, 3}: "cage_3",
			{5, 7}: "cage_4", {7, 5}: "cage_4", {6, 8}: "cage_4", {8, 6}: "cage_4",
		},
		tunnels: map[string]string{
			"c1_c2": "tunnel_1", "c2_c1": "tunnel_1",
			"c2_c3": "tunnel_2", "c3_c2": "tunnel_2",
			"c3_c4": "tunnel_3", "c4_c3": "tunnel_3",
			"c4_c1": "tunnel_4", "c1_c4": "tunnel_4",
		},
	}
	cageSet := map[string]bool{}
	t.antennas = map[int]bool{}
	for pair, pos := range t.pairPositions {
		t.antennas[pair[0]] = true
		t.antennas[pair[1]] = true
		if _, tunnel := t.tunnels[pos]; !tunnel {
			cageSet[pos] = true
		}
	}
	for cage := range cageSet {
		t.cages = append(t.cages, cage)
	}
	sort.Strings(t.cages)
	return t
}

// ValidAntenna reports whether the antenna id exists in the layout.
func (t *Topology) ValidAntenna(a int) bool { return t.antennas[a] }

// Position maps an ordered antenna pair (previous read, current read) to a
// position. The second return is false when the pair has no mapping.
func (t *Topology) Position(prev, next int) (string, bool) {
	pos, ok := t.pairPositions[[2]int{prev, next}]
	return pos, ok
}

// IsTunnel reports whether pos is a directional tunnel traversal.
func (t *Topology) IsTunnel(pos string) bool {
	_, ok := t.tunnels[pos]
	return ok
}

// IsCage reports whether pos is a named cage.
func (t *Topology) IsCage(pos string) bool {
	for _, c := range t.cages {
		if c == pos {
			return true
		}
	}
	return false
}

// Canonical collapses a directional tunnel position into its undirected
// tunnel identity. Cage positions and undefined pass through unchanged.
// The mapping is order-independent: both traversal directions of a physical
// tunnel yield the same identifier.
func (t *Topology) Canonical(pos string) string {
	if canon, ok := t.tunnels[pos]; ok {
		return canon
	}
	return pos
}

// Cages returns the cage position names in deterministic order.
func (t *Topology) Cages() []string {
	out := make([]string, len(t.cages))
	copy(out, t.cages)
	return out
}

// TunnelIDs returns the canonical undirected tunnel identifiers in
// deterministic order.
func (t *Topology) TunnelIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, canon := range t.tunnels {
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	sort.Strings(out)
	return out
}
