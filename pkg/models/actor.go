package models

// Actor is the user on whose behalf a transition or rule runs.
type Actor struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// InAnyGroup reports whether the actor belongs to at least one of groups.
func (a Actor) InAnyGroup(groups []string) bool {
	for _, want := range groups {
		for _, have := range a.Groups {
			if want == have {
				return true
			}
		}
	}

	return false
}

// Get exposes actor attributes to "$user.<field>" references.
func (a Actor) Get(field string) (any, bool) {
	switch field {
	case "id":
		return a.ID, true
	case "name":
		return a.Name, true
	case "groups":
		return a.Groups, true
	default:
		return nil, false
	}
}
