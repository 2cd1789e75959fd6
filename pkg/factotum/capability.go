package factotum

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	Kinds          []EventKind
	RequireMessage bool
	RequireCommand bool
	CommandNames   []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if i.RequireMessage && event.Message == nil {
		return false
	}
	if i.RequireCommand {
		if event.Command == nil {
			return false
		}
		if len(i.CommandNames) > 0 && !containsString(i.CommandNames, event.Command.Name) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireMessage && !filter.RequireMessage {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 && !allStringsIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}

	return true
}

func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

func containsString(values []string, target string) bool {
	for _, candidate := range values {
		if candidate == target {
			return true
		}
	}

	return false
}

// allIncluded reports whether subset is fully contained in allowed.
func allIncluded(subset, allowed []EventKind) bool {
	for _, item := range subset {
		if !containsKind(allowed, item) {
			return false
		}
	}

	return true
}

func allStringsIncluded(subset, allowed []string) bool {
	for _, item := range subset {
		if !containsString(allowed, item) {
			return false
		}
	}

	return true
}
