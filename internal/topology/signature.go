package topology

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// StructureSignature summarizes everything worth re-solving: bus and branch
// counts plus a hash over entity ids and component placements. Two equal
// signatures mean no structural edit happened in between; renames and
// position drags deliberately do not perturb the hash inputs beyond the id
// set, but an add-plus-delete burst that leaves the counts unchanged still
// produces a different hash.
func (s *Store) StructureSignature() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signatureLocked()
}

func (s *Store) signatureLocked() string {
	ids := make([]string, 0, len(s.buses)+len(s.branches)+len(s.components))
	for id := range s.buses {
		ids = append(ids, "bus:"+id)
	}
	for id, br := range s.branches {
		ids = append(ids, "br:"+id+":"+br.FromBusID+">"+br.ToBusID)
	}
	for id, c := range s.components {
		if c.BusID != "" {
			ids = append(ids, "cmp:"+id+"@"+c.BusID)
		}
	}
	sort.Strings(ids)

	h := fnv.New64a()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%d-%d-%016x", len(s.buses), len(s.branches), h.Sum64())
}
