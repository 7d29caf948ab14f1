package votes

import "testing"

func TestSettingsUsesUnionAsDenominator(t *testing.T) {
	tr := NewSettingsTracker()
	tr.AddVote("alice", ModeBullet, true)
	tr.AddVote("alice", ModeRapid, true) // same voter, two modes
	tr.AddVote("bob", ModeRapid, true)

	m := tr.Model()
	if m.Total != 2 {
		t.Fatalf("Total = %d, want 2 (union of alice,bob)", m.Total)
	}
	if !m.GameModes.Rapid {
		t.Fatalf("expected rapid enabled at 2/2")
	}
	if !m.GameModes.Bullet {
		t.Fatalf("expected bullet enabled at 1/2 (half of the union meets the threshold)")
	}
}

func TestSettingsNoVotesDisablesEverything(t *testing.T) {
	tr := NewSettingsTracker()
	m := tr.Model()
	if m.GameModes.Bullet || m.GameModes.Rapid || m.GameModes.Classical {
		t.Fatalf("expected all modes disabled with zero voters, got %+v", m.GameModes)
	}
}

func TestSettingsRemoveUserRetractsAllVotes(t *testing.T) {
	tr := NewSettingsTracker()
	tr.AddVote("alice", ModeBullet, true)
	tr.AddVote("alice", ModeClassical, true)
	tr.RemoveUser("alice")

	m := tr.Model()
	if m.Total != 0 {
		t.Fatalf("Total = %d, want 0 after RemoveUser", m.Total)
	}
}

func TestSettingsToggleOff(t *testing.T) {
	tr := NewSettingsTracker()
	tr.AddVote("alice", ModeBullet, true)
	tr.AddVote("alice", ModeBullet, false)

	m := tr.Model()
	if m.Bullet != 0 {
		t.Fatalf("Bullet count = %d, want 0 after toggling off", m.Bullet)
	}
}
