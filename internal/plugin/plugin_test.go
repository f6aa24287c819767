package plugin

import (
	"testing"

	"FlowSieve/internal/model"
)

type stubFilter struct{ name string }

func (f *stubFilter) Name() string { return f.name }

func (f *stubFilter) Initialize() error { return nil }

func (f *stubFilter) Check(r *model.FlowRec) model.Verdict { return model.Pass }

func (f *stubFilter) Finalize() {}

func (f *stubFilter) ThreadSafe() bool { return true }

func TestRegisterAndNew(t *testing.T) {
	Register("stub-a", func() Filter { return &stubFilter{name: "stub-a"} })
	Register("stub-b", func() Filter { return &stubFilter{name: "stub-b"} })

	f, err := New("stub-a")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.Name() != "stub-a" {
		t.Errorf("Expected stub-a, got %q", f.Name())
	}

	if _, err := New("nosuch"); err == nil {
		t.Errorf("Expected an error for an unknown filter")
	}

	names := Names()
	if len(names) < 2 || names[0] != "stub-a" || names[1] != "stub-b" {
		t.Errorf("Expected sorted names [stub-a stub-b], got %v", names)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected a panic on duplicate registration")
		}
	}()
	Register("stub-dup", func() Filter { return &stubFilter{} })
	Register("stub-dup", func() Filter { return &stubFilter{} })
}
