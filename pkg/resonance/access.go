package resonance

// IsLocked decides a moment's lock state for a viewer at read time.
// Side-effect free; safe to call before any payment attempt.
//
// Owners always see their own content; public moments are never locked;
// an existing unlock overrides price and tier gates. Otherwise the moment
// is locked when it carries a price or the viewer's tier falls short.
func IsLocked(moment Moment, viewerIsOwner bool, viewerUnlocked bool, viewerTier Tier) bool {
	if viewerIsOwner {
		return false
	}
	if moment.Kind == KindPublic {
		return false
	}
	if viewerUnlocked {
		return false
	}
	return !moment.Price.IsZero() || !viewerTier.Meets(moment.RequiredTier)
}
