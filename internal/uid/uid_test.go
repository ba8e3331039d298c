package uid

import (
	"regexp"
	"testing"
	"time"
)

var (
	reCrockford = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]+$`)
	reUUID      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func TestUID(t *testing.T) {
	for _, size := range []int{1, 10, 20} {
		id := UID(size)
		if len(id) != size {
			t.Fatalf("UID(%d) length: %d", size, len(id))
		}
		if !reCrockford.MatchString(id) {
			t.Fatalf("UID alphabet: %q", id)
		}
	}
}

func TestDocID(t *testing.T) {
	id := DocID()
	if len(id) != 20 || !reCrockford.MatchString(id) {
		t.Fatalf("DocID: %q", id)
	}
	if DocID() == DocID() {
		t.Fatalf("DocID collided")
	}
}

func TestUUID(t *testing.T) {
	if u := UUID(); !reUUID.MatchString(u) {
		t.Fatalf("UUID: %q", u)
	}
}

func TestULID_RoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewAt(at).String()
	if len(s) != 26 || !reCrockford.MatchString(s) {
		t.Fatalf("ULID: %q", s)
	}
	ms, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ms != at.UnixMilli() {
		t.Fatalf("Decode: %d != %d", ms, at.UnixMilli())
	}
}

func TestULID_Sortable(t *testing.T) {
	a := NewAt(time.UnixMilli(1000)).String()
	b := NewAt(time.UnixMilli(2000)).String()
	if !(a < b) {
		t.Fatalf("ULIDs not time-ordered: %q >= %q", a, b)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode("short"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := Decode("IIIIIIIIIIOOOOOOOOOOLLLLLL"); err == nil {
		t.Fatalf("expected alphabet error")
	}
}
