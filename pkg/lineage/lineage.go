// Package lineage computes ancestry summaries for subtitle versions.
//
// A lineage maps a language code to the highest version number of that
// language appearing anywhere in a version's ancestry. It is denormalized
// onto every version so that ancestry questions never require walking the
// parent graph.
package lineage

import "encoding/json"

// Lineage maps language code to the max ancestor version number for that language.
type Lineage map[string]int

// VersionRef identifies a version by language and number, without loading it.
type VersionRef struct {
	LanguageCode  string
	VersionNumber int
}

// Merge folds the given parents and their lineages into a fresh lineage.
//
// Behavior:
//   - Each parent contributes its own (language, number) pair.
//   - Each entry of each parent's lineage is folded in.
//   - Every fold is a max-reduction, so the result is independent of
//     parent order.
func Merge(parents []VersionRef, parentLineages []Lineage) Lineage {
	result := Lineage{}

	for _, parent := range parents {
		if parent.VersionNumber > result[parent.LanguageCode] {
			result[parent.LanguageCode] = parent.VersionNumber
		}
	}

	for _, pl := range parentLineages {
		for code, number := range pl {
			if number > result[code] {
				result[code] = number
			}
		}
	}

	return result
}

// Copy returns a detached copy of the lineage.
func (l Lineage) Copy() Lineage {
	out := make(Lineage, len(l))
	for code, number := range l {
		out[code] = number
	}
	return out
}

// Contains reports whether the lineage has an entry for the language code.
func (l Lineage) Contains(languageCode string) bool {
	_, ok := l[languageCode]
	return ok
}

// ToJSON serializes the lineage for storage.
func (l Lineage) ToJSON() ([]byte, error) {
	if l == nil {
		return json.Marshal(Lineage{})
	}
	return json.Marshal(l)
}

// FromJSON deserializes a stored lineage.
func FromJSON(data []byte) (Lineage, error) {
	if len(data) == 0 {
		return Lineage{}, nil
	}
	var l Lineage
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if l == nil {
		l = Lineage{}
	}
	return l, nil
}
