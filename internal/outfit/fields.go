package outfit

import "slices"

// AddCustomField appends a custom field and backfills it into every owner.
// Empty names, base keys and duplicates are ignored; the return value reports
// whether the field was added.
func (s *State) AddCustomField(name string) bool {
	cleaned := CleanCustomFields(append(slices.Clone(s.CustomFields), name))
	if len(cleaned) == len(s.CustomFields) {
		return false
	}
	s.CustomFields = cleaned
	s.EnsureSchemaKeys()
	return true
}

// RemoveCustomField removes a custom field from the schema and deletes its
// value from every owner.
func (s *State) RemoveCustomField(name string) bool {
	i := slices.Index(s.CustomFields, name)
	if i < 0 {
		return false
	}
	s.CustomFields = slices.Delete(slices.Clone(s.CustomFields), i, i+1)
	s.dropField(Field(name))
	s.EnsureSchemaKeys()
	return true
}

// SetCustomFields replaces the custom field list. New names are backfilled
// into every owner and names no longer listed are deleted from every owner.
// It returns the added and removed names.
func (s *State) SetCustomFields(names []string) (added, removed []string) {
	next := CleanCustomFields(names)
	for _, old := range s.CustomFields {
		if !slices.Contains(next, old) {
			removed = append(removed, old)
			s.dropField(Field(old))
		}
	}
	for _, n := range next {
		if !slices.Contains(s.CustomFields, n) {
			added = append(added, n)
		}
	}
	s.CustomFields = next
	s.EnsureSchemaKeys()
	return added, removed
}

// dropField deletes a key from the user and every character.
func (s *State) dropField(f Field) {
	if f.IsBase() {
		return
	}
	delete(s.User.Outfit, f)
	for _, cs := range s.Characters {
		if cs != nil {
			delete(cs.Outfit, f)
		}
	}
}
