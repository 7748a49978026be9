// Package feedback drives a ping-pong pair of render targets so that each frame
// can read the previous frame's output as a texture.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/gnode"
)

var (
	ErrSameTarget = errors.New("feedback: read and write targets are the same")
	errBadSize    = errors.New("feedback: render target size must be positive")
)

// State is the state of a feedback [Loop].
type State uint8

const (
	// NoPriorFrame means there is no valid previous frame to read from.
	NoPriorFrame State = iota
	// Steady means the read target holds the previous frame.
	Steady
)

func (s State) String() string {
	switch s {
	case NoPriorFrame:
		return "NoPriorFrame"
	case Steady:
		return "Steady"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Format is the texel format of a render target.
type Format uint8

const (
	FormatRGBA8 Format = iota
	FormatRGBA16F
	FormatRGBA32F
)

// Target is a render target created by an [Allocator].
type Target interface {
	Size() (width, height int)
}

// Allocator creates and resizes render targets. Resizing discards target contents.
type Allocator interface {
	CreateRenderTarget(width, height int, format Format) (Target, error)
	ResizeRenderTarget(t Target, width, height int) error
}

// Loop is a two state machine owning a pair of render targets. In the
// [NoPriorFrame] state draws receive no read target. Once a frame is drawn
// successfully the targets swap roles and the loop is [Steady]. A resize
// returns the loop to [NoPriorFrame].
type Loop struct {
	alloc   Allocator
	targets [2]Target
	write   int
	state   State
	frames  uint64
	w, h    int
}

// NewLoop allocates the target pair.
func NewLoop(alloc Allocator, width, height int, format Format) (*Loop, error) {
	if width <= 0 || height <= 0 {
		return nil, errBadSize
	}
	a, err := alloc.CreateRenderTarget(width, height, format)
	if err != nil {
		return nil, err
	}
	b, err := alloc.CreateRenderTarget(width, height, format)
	if err != nil {
		return nil, err
	}
	if a == b {
		return nil, ErrSameTarget
	}
	gnode.Logger().Debug("feedback targets allocated", slog.Int("width", width), slog.Int("height", height))
	return &Loop{alloc: alloc, targets: [2]Target{a, b}, w: width, h: height}, nil
}

// State returns the current state of the loop.
func (l *Loop) State() State { return l.state }

// Frames returns the number of frames drawn successfully since the last reset.
func (l *Loop) Frames() uint64 { return l.frames }

// Size returns the size of both targets.
func (l *Loop) Size() (width, height int) { return l.w, l.h }

// Write returns the target the next frame is drawn to.
func (l *Loop) Write() Target { return l.targets[l.write] }

// Read returns the target holding the previous frame, or nil in [NoPriorFrame].
func (l *Loop) Read() Target {
	if l.state == NoPriorFrame {
		return nil
	}
	return l.targets[1-l.write]
}

// Frame calls draw with the write target and the read target (nil in [NoPriorFrame]).
// The roles swap only after draw returns without error. A failed draw leaves the loop unchanged.
func (l *Loop) Frame(draw func(write, read Target) error) error {
	write, read := l.Write(), l.Read()
	if read != nil && read == write {
		return ErrSameTarget
	}
	if err := draw(write, read); err != nil {
		return err
	}
	l.write = 1 - l.write
	l.frames++
	if l.state == NoPriorFrame {
		gnode.Logger().Debug("feedback steady")
	}
	l.state = Steady
	return nil
}

// Resize resizes both targets and returns the loop to [NoPriorFrame] so that the
// next frame does not read stale contents. Resizing to the current size is a no-op.
// If a target fails to resize the targets already resized are restored to the
// previous size, so both targets always share the size reported by [Loop.Size].
func (l *Loop) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errBadSize
	}
	if width == l.w && height == l.h {
		return nil
	}
	l.state = NoPriorFrame
	l.frames = 0
	for i, t := range l.targets {
		err := l.alloc.ResizeRenderTarget(t, width, height)
		if err == nil {
			continue
		}
		for _, done := range l.targets[:i] {
			if rerr := l.alloc.ResizeRenderTarget(done, l.w, l.h); rerr != nil {
				err = errors.Join(err, fmt.Errorf("feedback: restoring %dx%d target: %w", l.w, l.h, rerr))
			}
		}
		return err
	}
	l.w, l.h = width, height
	gnode.Logger().Info("feedback reset", slog.String("reason", "resize"), slog.Int("width", width), slog.Int("height", height))
	return nil
}
