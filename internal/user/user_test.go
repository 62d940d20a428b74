package user

import "testing"

func TestNextTier(t *testing.T) {
	cases := []struct {
		p    Profile
		want int
	}{
		{Profile{}, 1},
		{Profile{Tier1Passed: true}, 2},
		{Profile{Tier1Passed: true, Tier2Passed: true}, 0},
	}
	for _, tc := range cases {
		if got := tc.p.NextTier(); got != tc.want {
			t.Fatalf("NextTier(%+v) = %d, want %d", tc.p, got, tc.want)
		}
	}
	if (Profile{Tier1Passed: true}).TierPassed(2) {
		t.Fatal("tier 2 reported passed")
	}
}
