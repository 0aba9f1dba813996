package config

// Merge combines two snapshots. The override flag is right-biased: it is
// overwritten whenever other carries a non-Unset value. Destinations are
// combined by name; a name present on both sides has its subscription and
// filter sets unioned rather than raising a conflict. Merge never fails.
func Merge(a, b Global) Global {
	out := NewGlobal()
	out.TraceOverride = a.TraceOverride
	if b.TraceOverride != OverrideUnset {
		out.TraceOverride = b.TraceOverride
	}

	for name, d := range a.Destinations {
		out.Destinations[name] = d.Clone()
	}
	for name, d := range b.Destinations {
		if existing, ok := out.Destinations[name]; ok {
			out.Destinations[name] = combineDestinations(existing, d)
			continue
		}
		out.Destinations[name] = d.Clone()
	}
	return out
}

// combineDestinations unions the subscription and filter sets of two
// configs sharing a name. Scalar fields keep the left side's values (the
// first definition wins). Subscriptions with the same key collapse to the
// most permissive pair: most-verbose level, OR'd keywords.
func combineDestinations(a, b *Destination) *Destination {
	out := a.Clone()
	for _, sub := range b.Subscriptions {
		// Clone above unsealed the copy, so these cannot fail.
		_ = out.AddSubscription(sub)
	}
	for _, pattern := range b.Filters {
		_ = out.AddFilter(pattern)
	}
	return out
}

// mergeSubscriptions collapses two subscriptions with the same key into
// the most permissive of the pair.
func mergeSubscriptions(a, b Subscription) Subscription {
	out := a
	if b.MinimumLevel > out.MinimumLevel {
		out.MinimumLevel = b.MinimumLevel
	}
	out.Keywords |= b.Keywords
	out.Resolved = a.Resolved || b.Resolved
	return out
}
