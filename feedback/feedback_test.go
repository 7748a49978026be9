package feedback_test

import (
	"errors"
	"testing"

	"github.com/soypat/gnode/feedback"
)

type fakeTarget struct{ w, h int }

func (t *fakeTarget) Size() (int, int) { return t.w, t.h }

type fakeAllocator struct {
	created, resized int
	shared           *fakeTarget
	// failAt makes the resize call with this 1-based count fail. Zero never fails.
	failAt int
}

func (a *fakeAllocator) CreateRenderTarget(w, h int, _ feedback.Format) (feedback.Target, error) {
	a.created++
	if a.shared != nil {
		return a.shared, nil
	}
	return &fakeTarget{w, h}, nil
}

func (a *fakeAllocator) ResizeRenderTarget(t feedback.Target, w, h int) error {
	a.resized++
	if a.resized == a.failAt {
		return errors.New("out of memory")
	}
	ft := t.(*fakeTarget)
	ft.w, ft.h = w, h
	return nil
}

func TestLoopSwap(t *testing.T) {
	var alloc fakeAllocator
	loop, err := feedback.NewLoop(&alloc, 4, 3, feedback.FormatRGBA16F)
	if err != nil {
		t.Fatal(err)
	}
	if loop.State() != feedback.NoPriorFrame || loop.Read() != nil {
		t.Fatal("new loop must have no prior frame")
	}
	var first feedback.Target
	err = loop.Frame(func(write, read feedback.Target) error {
		if read != nil {
			t.Error("first frame must not read")
		}
		first = write
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if loop.State() != feedback.Steady {
		t.Fatal("loop should be steady after first frame")
	}
	if loop.Read() != first {
		t.Fatal("written target must become the read target")
	}
	for i := 0; i < 5; i++ {
		prevWrite := loop.Write()
		prevRead := loop.Read()
		loop.Frame(func(write, read feedback.Target) error {
			if write == read {
				t.Fatal("read and write are the same target")
			}
			return nil
		})
		if loop.Read() != prevWrite || loop.Write() != prevRead {
			t.Fatalf("frame %d: roles did not swap", i)
		}
	}
	if loop.Frames() != 6 {
		t.Errorf("want 6 frames, got %d", loop.Frames())
	}
}

func TestLoopFailedDraw(t *testing.T) {
	loop, err := feedback.NewLoop(new(fakeAllocator), 2, 2, feedback.FormatRGBA8)
	if err != nil {
		t.Fatal(err)
	}
	write := loop.Write()
	errDraw := errors.New("draw failed")
	err = loop.Frame(func(_, _ feedback.Target) error { return errDraw })
	if !errors.Is(err, errDraw) {
		t.Fatalf("want draw error, got %v", err)
	}
	if loop.State() != feedback.NoPriorFrame || loop.Write() != write {
		t.Error("failed draw must not change the loop")
	}
}

func TestLoopResize(t *testing.T) {
	var alloc fakeAllocator
	loop, _ := feedback.NewLoop(&alloc, 2, 2, feedback.FormatRGBA8)
	loop.Frame(func(_, _ feedback.Target) error { return nil })
	if err := loop.Resize(2, 2); err != nil || loop.State() != feedback.Steady {
		t.Fatal("resize to same size must be a no-op")
	}
	if err := loop.Resize(8, 6); err != nil {
		t.Fatal(err)
	}
	if loop.State() != feedback.NoPriorFrame || loop.Read() != nil {
		t.Error("resize must reset to NoPriorFrame")
	}
	if alloc.resized != 2 {
		t.Errorf("want both targets resized, got %d", alloc.resized)
	}
	if w, h := loop.Write().Size(); w != 8 || h != 6 {
		t.Errorf("target not resized: %dx%d", w, h)
	}
	if err := loop.Resize(0, 6); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestLoopResizeFailure(t *testing.T) {
	var alloc fakeAllocator
	loop, _ := feedback.NewLoop(&alloc, 4, 4, feedback.FormatRGBA8)
	loop.Frame(func(_, _ feedback.Target) error { return nil })
	write := loop.Write()
	alloc.failAt = 2 // Second target of the resize.
	if err := loop.Resize(8, 8); err == nil {
		t.Fatal("expected resize error")
	}
	if w, h := loop.Size(); w != 4 || h != 4 {
		t.Errorf("loop size changed on failed resize: %dx%d", w, h)
	}
	loop.Frame(func(_, _ feedback.Target) error { return nil })
	for _, tg := range []feedback.Target{write, loop.Write()} {
		if w, h := tg.Size(); w != 4 || h != 4 {
			t.Errorf("targets of mixed size after failed resize: %dx%d", w, h)
		}
	}
	if loop.State() != feedback.Steady {
		t.Error("loop should recover after a failed resize")
	}
	alloc.failAt = 0
	if err := loop.Resize(8, 8); err != nil {
		t.Fatal(err)
	}
	for _, tg := range []feedback.Target{write, loop.Write()} {
		if w, h := tg.Size(); w != 8 || h != 8 {
			t.Errorf("retried resize: target %dx%d", w, h)
		}
	}
}

func TestLoopSameTarget(t *testing.T) {
	alloc := fakeAllocator{shared: &fakeTarget{1, 1}}
	_, err := feedback.NewLoop(&alloc, 1, 1, feedback.FormatRGBA8)
	if !errors.Is(err, feedback.ErrSameTarget) {
		t.Fatalf("want same target error, got %v", err)
	}
}
