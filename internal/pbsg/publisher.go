package pbsg

// statesEqual reports whether two states agree on everything observers
// care about. Version is deliberately left out of the comparison; a
// fresh build token alone is not a change worth announcing.
func statesEqual(a, b *State) bool {
	return sameStrings(a.Buttons, b.Buttons) &&
		a.Default == b.Default &&
		a.Active == b.Active &&
		sameStrings(a.History, b.History)
}

// publishChanges compares prev against next and publishes the
// attributes whose backing values actually moved. The full state
// snapshot goes out whenever anything differs; the active button and
// the button count only when they themselves changed. It reports
// whether the two states differed at all, whether or not a publisher
// is attached.
func publishChanges(pub AttributePublisher, instance string, prev, next *State) bool {
	if statesEqual(prev, next) {
		return false
	}
	if pub != nil {
		pub.PublishAttribute(instance, AttrState, next.DeepCopy())
		if prev.Active != next.Active {
			pub.PublishAttribute(instance, AttrActive, next.Active)
		}
		if len(prev.Buttons) != len(next.Buttons) {
			pub.PublishAttribute(instance, AttrButtonCount, len(next.Buttons))
		}
	}
	return true
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
