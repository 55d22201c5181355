package rotation

import (
	"testing"
	"time"

	"github.com/imoran/clade/pkg/errors"
)

func TestNewRequiresKeys(t *testing.T) {
	if _, err := New(nil); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Errorf("expected configuration error for empty pool, got %v", err)
	}
	if _, err := New([]string{"", ""}); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Errorf("expected configuration error for blank keys, got %v", err)
	}
}

func TestRoundRobin(t *testing.T) {
	r, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := []string{r.Next(), r.Next(), r.Next(), r.Next()}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestQuarantineSkipped(t *testing.T) {
	r, _ := New([]string{"a", "b", "c"})
	r.Quarantine("b")

	for i := 0; i < 4; i++ {
		if key := r.Next(); key == "b" {
			t.Fatalf("quarantined key handed out on call %d", i)
		}
	}
	st := r.Status()
	if st.Quarantined != 1 || st.Available != 2 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestStatusInvariant(t *testing.T) {
	r, _ := New([]string{"a", "b", "c"})
	check := func() {
		st := r.Status()
		if st.Available+st.Quarantined != st.Total {
			t.Errorf("available+quarantined != total: %+v", st)
		}
	}
	check()
	r.Quarantine("a")
	check()
	r.Quarantine("b")
	check()
	r.Quarantine("c")
	check()
	r.Next()
	check()
}

func TestFailOpenWhenAllQuarantined(t *testing.T) {
	r, _ := New([]string{"a", "b"})
	r.Quarantine("a")
	r.Quarantine("b")

	// All quarantined: Next must still return a key, and the quarantine set
	// must be cleared rather than blocking.
	if key := r.Next(); key == "" {
		t.Fatalf("expected fail-open key, got empty")
	}
	st := r.Status()
	if st.Quarantined != 0 {
		t.Errorf("expected quarantine cleared after fail-open, got %+v", st)
	}
}

func TestCooldownExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	r, _ := New([]string{"a", "b"}, WithCooldown(30*time.Second), WithClock(clock))

	r.Quarantine("a")
	if st := r.Status(); st.Quarantined != 1 {
		t.Fatalf("expected 1 quarantined, got %+v", st)
	}

	now = now.Add(29 * time.Second)
	if st := r.Status(); st.Quarantined != 1 {
		t.Errorf("expected quarantine to hold before cooldown, got %+v", st)
	}

	now = now.Add(2 * time.Second)
	if st := r.Status(); st.Quarantined != 0 {
		t.Errorf("expected quarantine released after cooldown, got %+v", st)
	}
}

func TestRequarantineResetsWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	r, _ := New([]string{"a", "b"}, WithCooldown(30*time.Second), WithClock(clock))

	r.Quarantine("a")
	now = now.Add(20 * time.Second)
	r.Quarantine("a") // debounce: window restarts, not extends additively

	now = now.Add(20 * time.Second) // 40s after first, 20s after second
	if st := r.Status(); st.Quarantined != 1 {
		t.Errorf("expected debounced quarantine to still hold, got %+v", st)
	}

	now = now.Add(11 * time.Second)
	if st := r.Status(); st.Quarantined != 0 {
		t.Errorf("expected quarantine released after reset window, got %+v", st)
	}
}

func TestQuarantineUnknownKeyIgnored(t *testing.T) {
	r, _ := New([]string{"a"})
	r.Quarantine("nope")
	if st := r.Status(); st.Quarantined != 0 {
		t.Errorf("expected unknown key to be ignored, got %+v", st)
	}
}
