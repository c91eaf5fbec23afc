package ids

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewIsStrictlyIncreasing(t *testing.T) {
	const n = 10000
	prev := New()
	for i := 0; i < n; i++ {
		next := New()
		if bytes.Compare(prev[:], next[:]) >= 0 {
			t.Fatalf("identifier %d not increasing: %s then %s", i, prev, next)
		}
		prev = next
	}
}

func TestNewConcurrentUnique(t *testing.T) {
	const (
		workers = 8
		perG    = 2000
	)
	var (
		mu   sync.Mutex
		seen = make(map[ID]struct{}, workers*perG)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]ID, 0, perG)
			for i := 0; i < perG; i++ {
				local = append(local, New())
			}
			for i := 1; i < len(local); i++ {
				if bytes.Compare(local[i-1][:], local[i][:]) >= 0 {
					t.Errorf("goroutine observed non-increasing ids: %s then %s", local[i-1], local[i])
					return
				}
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if _, dup := seen[id]; dup {
					t.Errorf("duplicate id %s", id)
				}
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
}

func TestParseRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		parsed, err := Parse(id.String())
		if err != nil {
			t.Fatalf("Parse(%s): %v", id, err)
		}
		if parsed != id {
			t.Fatalf("round trip mismatch: %s != %s", parsed, id)
		}
	}
}

func TestParseRejectsForeignVersions(t *testing.T) {
	foreign := []string{
		uuid.NewString(),                   // v4
		uuid.Must(uuid.NewUUID()).String(), // v1
		uuid.NewSHA1(uuid.NameSpaceDNS, []byte("tessera.id")).String(), // v5
		uuid.Nil.String(),
	}
	for _, s := range foreign {
		_, err := Parse(s)
		if !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("Parse(%s) = %v, want ErrInvalidVersion", s, err)
		}
		if errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("Parse(%s) reported format error for well-formed input", s)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	id := New().String()
	cases := []string{
		"",
		"not-a-uuid",
		strings.ReplaceAll(id, "-", ""),
		"{" + id + "}",
		"urn:uuid:" + id,
		id[:35] + "z",
		" " + id[1:],
	}
	for _, s := range cases {
		_, err := Parse(s)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("Parse(%q) = %v, want ErrInvalidFormat", s, err)
		}
	}
}

func TestParseRejectsForeignVariant(t *testing.T) {
	u := uuid.UUID(New())
	u[8] = u[8]&0x1f | 0xc0 // Microsoft variant
	_, err := Parse(u.String())
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion for foreign variant, got %v", err)
	}
}

func TestTimeIsEmbedded(t *testing.T) {
	// Same-tick calls advance the sub-millisecond sequence, which can carry
	// the embedded clock slightly ahead of wall time.
	before := time.Now().Add(-time.Second)
	id := New()
	after := time.Now().Add(time.Second)
	ts := id.Time()
	if ts.Before(before) || ts.After(after) {
		t.Fatalf("embedded time %v outside [%v, %v]", ts, before, after)
	}
}

func TestJSONUnmarshalEnforcesVersion(t *testing.T) {
	var payload struct {
		ID ID `json:"id"`
	}
	good := New()
	if err := json.Unmarshal([]byte(`{"id":"`+good.String()+`"}`), &payload); err != nil {
		t.Fatalf("unmarshal valid id: %v", err)
	}
	if payload.ID != good {
		t.Fatalf("unexpected id %s", payload.ID)
	}

	err := json.Unmarshal([]byte(`{"id":"`+uuid.NewString()+`"}`), &payload)
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestScanValidates(t *testing.T) {
	var id ID
	want := New()
	if err := id.Scan(want.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if id != want {
		t.Fatalf("scan mismatch: %s != %s", id, want)
	}
	if err := id.Scan(uuid.NewString()); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion from scan, got %v", err)
	}
	if err := id.Scan(42); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat from scan, got %v", err)
	}
}

func TestNewRequestIDSortable(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected ulid lengths: %d %d", len(a), len(b))
	}
	if a >= b {
		t.Fatalf("request ids not increasing: %s then %s", a, b)
	}
}
