package orders

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{StatusRejected, StatusRejected, false},
		{Status("bogus"), StatusAccepted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Fatalf("pending must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusRejected.Terminal() {
		t.Fatalf("accepted and rejected must be terminal")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAccepted, StatusRejected} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("shipped").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
}
