package manifest

import (
	"bytes"
	"encoding/json"
)

// DependencyList is an ordered list of Dependency values. It unmarshals from
// any of the four shapes §4.C allows a manifest's dependency value to take:
// an object keyed by name (order preserved) whose values are version
// strings or dependency objects, a bare array of names, or a single
// whitespace-separated string.
type DependencyList []Dependency

// UnmarshalJSON implements the four-shape normalization described in §4.C.
// Decoding is order-preserving for the object form because we walk the
// token stream ourselves rather than going through map[string]T, which Go's
// encoding/json does not guarantee an iteration order for.
func (l *DependencyList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*l = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		return l.unmarshalObject(trimmed)
	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return err
		}
		deps := make(DependencyList, 0, len(names))
		for _, n := range names {
			deps = append(deps, normalizeString(n, "latest"))
		}
		*l = deps
		return nil
	case '"':
		var line string
		if err := json.Unmarshal(trimmed, &line); err != nil {
			return err
		}
		*l = ParseWhitespaceSeparated(line)
		return nil
	default:
		return &InvalidDependencyError{Name: "<dependencies>", Raw: string(trimmed)}
	}
}

func (l *DependencyList) unmarshalObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // consume '{'
		return err
	}

	var deps DependencyList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		dep, err := normalizeValue(name, raw)
		if err != nil {
			return err
		}
		deps = append(deps, dep)
	}
	*l = deps
	return nil
}

// MarshalJSON re-serializes the list as a name-keyed object, preserving
// insertion order by hand (encoding/json always sorts map keys otherwise).
func (l DependencyList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dep := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(dep.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valueBytes, err := json.Marshal(struct {
			Version string `json:"version,omitempty"`
			Global  bool   `json:"global,omitempty"`
			Source  Source `json:"source,omitempty"`
			Repo    string `json:"repo,omitempty"`
			Ref     string `json:"ref,omitempty"`
		}{dep.Version, dep.Global, dep.Source, dep.Repo, dep.Ref})
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the dependency named name, if present.
func (l DependencyList) Get(name string) (Dependency, bool) {
	for _, dep := range l {
		if dep.Name == name {
			return dep, true
		}
	}
	return Dependency{}, false
}
