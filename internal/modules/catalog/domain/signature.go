package domain

import "strings"

// Signature maps executable-name substrings to a game. Category stays a
// plain string here; the sessions module owns the category vocabulary.
type Signature struct {
	ID          string
	Name        string
	Category    string
	Executables []string
}

// Match resolves a process name against an ordered signature list. The
// name is lowercased and the first signature containing any of its
// executable substrings wins, so catalog order is a deterministic
// tie-break between overlapping signatures.
func Match(signatures []Signature, processName string) (Signature, bool) {
	needle := strings.ToLower(processName)
	for _, sig := range signatures {
		for _, exe := range sig.Executables {
			if exe == "" {
				continue
			}
			if strings.Contains(needle, strings.ToLower(exe)) {
				return sig, true
			}
		}
	}
	return Signature{}, false
}

// Dedupe keeps the last occurrence of each id, preserving the order of
// first appearance. Catalog reloads are wholesale last-write-wins per id.
func Dedupe(signatures []Signature) []Signature {
	latest := map[string]Signature{}
	order := []string{}
	for _, sig := range signatures {
		if _, seen := latest[sig.ID]; !seen {
			order = append(order, sig.ID)
		}
		latest[sig.ID] = sig
	}
	out := make([]Signature, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
