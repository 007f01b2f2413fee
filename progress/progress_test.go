package progress

import (
	"context"
	"testing"
	"time"

	"signup-middleware/store"
)

func TestStepPathForIndexCoversAllSteps(t *testing.T) {
	for i := 0; i < StepCount(); i++ {
		path, err := StepPathForIndex(i)
		if err != nil {
			t.Fatalf("index %v: %v", i, err)
		}
		back, ok := StepIndexForPath(path)
		if !ok || back != i {
			t.Errorf("path %v maps back to %v, want %v", path, back, i)
		}
	}
}

func TestStepPathForIndexOutOfRange(t *testing.T) {
	if _, err := StepPathForIndex(-1); err == nil {
		t.Error("negative index should be rejected")
	}
	if _, err := StepPathForIndex(StepCount()); err == nil {
		t.Error("index past the last step should be rejected")
	}
}

func TestStepNameAndIndexStayConsistent(t *testing.T) {
	// the canonical names the rest of the system depends on
	cases := map[string]int{
		"welcome":      0,
		"account":      1,
		"contact_info": 2,
		"package":      3,
		"funding":      4,
		"summary":      5,
	}
	for name, want := range cases {
		got, ok := StepIndexForName(name)
		if !ok {
			t.Errorf("step %v not found", name)
			continue
		}
		if got != want {
			t.Errorf("step %v at index %v, want %v", name, got, want)
		}
		back, err := StepNameForIndex(got)
		if err != nil || back != name {
			t.Errorf("index %v names %v, want %v", got, back, name)
		}
	}
}

func TestSaveThenLoad(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	s := NewState(st)
	ctx := context.Background()

	saved := s.Save(ctx, "user-1", 3, "package", false)
	if saved.Timestamp == 0 {
		t.Error("save should stamp the record")
	}

	got := s.Load(ctx, "user-1")
	if got == nil {
		t.Fatal("expected a record")
	}
	if got.SignupProgress != 3 || got.SignupStep != "package" || got.SignupCompleted {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestLoadAbsentReturnsNil(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	s := NewState(st)

	if got := s.Load(context.Background(), "nobody"); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClearRemovesRecord(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	s := NewState(st)
	ctx := context.Background()

	s.Save(ctx, "user-1", 2, "contact_info", false)
	if err := s.Clear(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(ctx, "user-1"); got != nil {
		t.Errorf("expected nil after clear, got %+v", got)
	}
}

func TestSaveStampsCurrentTime(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	s := NewState(st)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	saved := s.Save(context.Background(), "user-1", 1, "account", false)
	want := fixed.UnixNano() / int64(time.Millisecond)
	if saved.Timestamp != want {
		t.Errorf("timestamp %v, want %v", saved.Timestamp, want)
	}
}
