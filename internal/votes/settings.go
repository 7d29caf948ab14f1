package votes

import "chess-crowd/internal/model"

// GameMode is a votable time-control class. Blitz is deliberately absent —
// it is always enabled (spec.md §3, §4.5) and never appears in a ballot.
type GameMode string

const (
	ModeBullet    GameMode = "bullet"
	ModeRapid     GameMode = "rapid"
	ModeClassical GameMode = "classical"
)

// SettingsTracker tallies cross-game settings votes: which time-control
// classes chat wants enabled. Grounded on the original's
// engine/votes/settings.rs, whose denominator is the union of everyone who
// voted for *any* mode, not the sum of per-mode counts (spec.md §4.5).
type SettingsTracker struct {
	bullet    map[string]struct{}
	rapid     map[string]struct{}
	classical map[string]struct{}
}

// NewSettingsTracker creates an empty settings tracker.
func NewSettingsTracker() *SettingsTracker {
	return &SettingsTracker{
		bullet:    map[string]struct{}{},
		rapid:     map[string]struct{}{},
		classical: map[string]struct{}{},
	}
}

func (t *SettingsTracker) setFor(mode GameMode) map[string]struct{} {
	switch mode {
	case ModeBullet:
		return t.bullet
	case ModeRapid:
		return t.rapid
	case ModeClassical:
		return t.classical
	default:
		return nil
	}
}

// AddVote records (or retracts) user's vote for mode.
func (t *SettingsTracker) AddVote(user string, mode GameMode, on bool) {
	set := t.setFor(mode)
	if set == nil {
		return
	}
	if on {
		set[user] = struct{}{}
	} else {
		delete(set, user)
	}
}

// RemoveUser retracts every vote cast by user, e.g. on disconnect.
func (t *SettingsTracker) RemoveUser(user string) {
	delete(t.bullet, user)
	delete(t.rapid, user)
	delete(t.classical, user)
}

// voters returns the union of every distinct user who cast a vote for any
// mode — the denominator for is-enabled ratios (spec.md §4.5).
func (t *SettingsTracker) voters() map[string]struct{} {
	union := map[string]struct{}{}
	for u := range t.bullet {
		union[u] = struct{}{}
	}
	for u := range t.rapid {
		union[u] = struct{}{}
	}
	for u := range t.classical {
		union[u] = struct{}{}
	}
	return union
}

func isEnabled(count, total int) bool {
	if total == 0 {
		return false
	}
	return float64(count)/float64(total) >= 0.5
}

// Model computes the derived settings snapshot: per-mode counts, the union
// total, and which modes are enabled (>=50% of voters). Blitz is not part
// of the snapshot.
func (t *SettingsTracker) Model() model.Settings {
	total := len(t.voters())
	bullet := len(t.bullet)
	rapid := len(t.rapid)
	classical := len(t.classical)

	return model.Settings{
		GameModes: model.GameModes{
			Bullet:    isEnabled(bullet, total),
			Rapid:     isEnabled(rapid, total),
			Classical: isEnabled(classical, total),
		},
		Bullet:    bullet,
		Rapid:     rapid,
		Classical: classical,
		Total:     total,
	}
}
