package sim

import "fmt"

// Reconfigure reconciles the fleet in s with cfg. Existing ferries keep their
// phase, schedule and boarded vehicles and take the new capacity; new ferries
// are appended idle, alternating terminals by their index in the fleet. When
// the fleet shrinks, trailing ferries are retired only if they are idle and
// empty; the rest keep operating until a later reconfiguration finds them
// free. Ids are never reused, so after a partial shrink an id can differ from
// the ferry's index.
func Reconfigure(s State, cfg Config) (State, error) {
	if err := cfg.Validate(); err != nil {
		return s, fmt.Errorf("reconfigure: %w", err)
	}

	ferries := make([]Ferry, 0, max(cfg.FerryCount, len(s.Ferries)))
	nextID := 0
	for i, f := range s.Ferries {
		nextID = max(nextID, f.ID+1)
		if i >= cfg.FerryCount && retirable(f) {
			continue
		}
		ferries = append(ferries, f.withCapacity(cfg.FerryCapacity))
	}
	for len(ferries) < cfg.FerryCount {
		ferries = append(ferries, newFerry(nextID, len(ferries), cfg.FerryCapacity))
		nextID++
	}

	s.Ferries = ferries
	return s, nil
}

func retirable(f Ferry) bool {
	return f.State() == StateIdle && f.Load() == 0
}
