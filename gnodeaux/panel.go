package gnodeaux

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chewxy/math32"
	"github.com/gdamore/tcell/v2"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/param"
	"github.com/soypat/gnode/scene"
)

const (
	panelWidth = 46
	labelWidth = 24
	gaugeWidth = 8
	helpLine   = "↑↓ select ←→ step +- x10 tab comp h hsv q quit"
)

var _ param.Editor = (*Panel)(nil)

// Panel is a terminal parameter editor. Every declared parameter gets a row
// showing its value which is nudged with the arrow keys. The area left of the
// list previews a render target with half block characters.
//
// Terminal events are read on a separate goroutine and forwarded through a
// channel; [Panel.Update] applies them on the calling goroutine.
type Panel struct {
	// Pointer, when not nil, receives mouse positions over the preview normalized
	// to [0,1] from the top left corner.
	Pointer func(u, v float32)

	screen   tcell.Screen
	events   chan tcell.Event
	params   []*param.Parameter
	sel      int
	comp     int
	hsv      bool
	quit     bool
	status   string
	previewW int
	previewH int
}

// NewPanel returns a panel drawing on an initialized screen and starts reading its events.
func NewPanel(screen tcell.Screen) *Panel {
	p := &Panel{
		screen: screen,
		events: make(chan tcell.Event, 64),
		hsv:    true,
	}
	go func() {
		defer close(p.events)
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return // Screen finalized.
			}
			p.events <- ev
		}
	}()
	return p
}

// DeclareEditableParameter implements [param.Editor].
func (p *Panel) DeclareEditableParameter(prm *param.Parameter) {
	p.params = append(p.params, prm)
}

// Selected returns the selected parameter or nil if none was declared.
func (p *Panel) Selected() *param.Parameter {
	if len(p.params) == 0 {
		return nil
	}
	return p.params[p.sel]
}

// Component returns the selected component of the selected parameter.
func (p *Panel) Component() int { return p.comp }

// Status returns the last edit error message or the empty string.
func (p *Panel) Status() string { return p.status }

// Update applies pending terminal events. It reports false once the user quit.
func (p *Panel) Update() bool {
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				p.quit = true
				return false
			}
			p.HandleEvent(ev)
		default:
			return !p.quit
		}
	}
}

// HandleEvent applies a single terminal event. It reports false once the user quit.
func (p *Panel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		p.screen.Sync()
	case *tcell.EventMouse:
		x, y := ev.Position()
		if p.Pointer != nil && ev.Buttons()&tcell.Button1 != 0 && x < p.previewW && y < p.previewH {
			p.Pointer((float32(x)+0.5)/float32(p.previewW), (float32(y)+0.5)/float32(p.previewH))
		}
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			p.quit = true
		case tcell.KeyUp:
			p.selectParam(-1)
		case tcell.KeyDown:
			p.selectParam(1)
		case tcell.KeyTab:
			if n := p.components(); n > 0 {
				p.comp = (p.comp + 1) % n
			}
		case tcell.KeyLeft:
			p.step(-1)
		case tcell.KeyRight:
			p.step(1)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				p.quit = true
			case 'h':
				p.hsv = !p.hsv
			case '+':
				p.step(10)
			case '-':
				p.step(-10)
			}
		}
	}
	return !p.quit
}

func (p *Panel) selectParam(dir int) {
	n := len(p.params)
	if n == 0 {
		return
	}
	p.sel = (p.sel + dir + n) % n
	p.comp = 0
}

func (p *Panel) components() int {
	prm := p.Selected()
	if prm == nil {
		return 0
	}
	return prm.Kind().Components()
}

func (p *Panel) step(dir float32) {
	prm := p.Selected()
	if prm == nil {
		return
	}
	var err error
	if prm.Kind() == param.Color && p.hsv {
		err = StepHSV(prm, p.comp, dir)
	} else {
		err = prm.Step(p.comp, dir)
	}
	p.status = ""
	if err != nil {
		p.status = err.Error()
	}
}

// Draw redraws the screen. preview may be nil, in which case the parameter list
// takes the whole screen.
func (p *Panel) Draw(preview *glrender.Target) {
	p.screen.Clear()
	cols, rows := p.screen.Size()
	x0 := 0
	p.previewW, p.previewH = 0, 0
	if preview != nil && cols > panelWidth {
		x0 = cols - panelWidth
		p.previewW, p.previewH = x0, rows
		p.drawPreview(preview)
	}
	def := tcell.StyleDefault
	for i, prm := range p.params {
		if i >= rows-2 {
			break
		}
		style := def
		if i == p.sel {
			style = def.Bold(true)
			p.text(x0, i, ">", style)
		}
		label := prm.FullName()
		if len(label) > labelWidth-2 {
			label = label[:labelWidth-2]
		}
		p.text(x0+2, i, label, style)
		p.drawValue(x0+labelWidth, i, prm, i == p.sel)
	}
	if p.status != "" {
		p.text(x0, rows-2, p.status, def.Foreground(tcell.ColorRed))
	}
	p.text(x0, rows-1, helpLine, def.Dim(true))
	p.screen.Show()
}

func (p *Panel) drawValue(x, y int, prm *param.Parameter, selected bool) {
	def := tcell.StyleDefault
	v := prm.Value()
	if prm.Kind() == param.Color {
		swatch := def.Foreground(tcell.NewHexColor(int32(rgbToC(v[0], v[1], v[2]))))
		x = p.text(x, y, "██", swatch) + 1
		if p.hsv {
			h, s, val := ValueHSV(v)
			v = param.Value{h, s, val}
		}
	}
	for c := range prm.Kind().Components() {
		style := def
		if selected && c == p.comp {
			style = style.Reverse(true)
		}
		x = p.text(x, y, strconv.FormatFloat(float64(v[c]), 'g', 4, 32), style) + 1
	}
	rng := prm.Range()
	if prm.Kind() == param.Scalar && rng.Max > rng.Min {
		p.drawGauge(x, y, (v[0]-rng.Min)/(rng.Max-rng.Min))
	}
}

// drawGauge draws a bar filled to frac, colored from blue when empty to red when full.
func (p *Panel) drawGauge(x, y int, frac float32) {
	frac = ms1.Clamp(frac, 0, 1)
	h, s, v := interpHSV(2./3, 0.8, 0.9, 0, 0.8, 0.9, frac)
	style := tcell.StyleDefault.Foreground(tcell.NewHexColor(int32(rgbToC(hsvToRGB(h, s, v)))))
	filled := int(math32.Round(frac * gaugeWidth))
	for i := range gaugeWidth {
		r := '░'
		if i < filled {
			r = '█'
		}
		p.screen.SetContent(x+i, y, r, nil, style)
	}
}

// drawPreview draws t in the preview area, two pixels per cell.
func (p *Panel) drawPreview(t *glrender.Target) {
	w, h := float32(p.previewW), float32(2*p.previewH)
	for cy := range p.previewH {
		vTop := 1 - (float32(2*cy)+0.5)/h
		vBot := 1 - (float32(2*cy)+1.5)/h
		for cx := range p.previewW {
			u := (float32(cx) + 0.5) / w
			top := t.Sample(ms2.Vec{X: u, Y: vTop})
			bot := t.Sample(ms2.Vec{X: u, Y: vBot})
			style := tcell.StyleDefault.Foreground(termColor(top)).Background(termColor(bot))
			p.screen.SetContent(cx, cy, '▀', nil, style)
		}
	}
}

func termColor(c [4]float32) tcell.Color {
	return tcell.NewHexColor(int32(rgbToC(c[0], c[1], c[2])))
}

func (p *Panel) text(x, y int, s string, style tcell.Style) int {
	for _, r := range s {
		p.screen.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

// TerminalConfig configures [Terminal].
type TerminalConfig struct {
	// Screen to draw on. A new terminal screen is opened when nil.
	Screen tcell.Screen
	// FPS is the frame rate. Defaults to 30.
	FPS       int
	BatchSize int
	Context   context.Context
}

// Terminal runs the scene built from cfg on the software renderer, previews the
// presented frames in the terminal and edits its parameters with a [Panel].
// Clicking the preview moves the cursor.
func Terminal(cfg scene.Config, tcfg TerminalConfig) error {
	if tcfg.FPS <= 0 {
		tcfg.FPS = 30
	}
	if tcfg.BatchSize == 0 {
		tcfg.BatchSize = 4096
	}
	screen := tcfg.Screen
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return err
		}
		if err := screen.Init(); err != nil {
			return err
		}
	}
	defer screen.Fini()
	screen.EnableMouse()
	r, err := glrender.NewSoftware(glrender.Camera{}, tcfg.BatchSize)
	if err != nil {
		return err
	}
	s, err := scene.New(r, cfg)
	if err != nil {
		return err
	}
	panel := NewPanel(screen)
	s.Store.SetEditor(panel)
	panel.Pointer = func(u, v float32) {
		w, h := s.Loop().Size()
		s.PointerMove(u*float32(w), v*float32(h))
	}
	ctx := tcfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(time.Second / time.Duration(tcfg.FPS))
	defer ticker.Stop()
	last := time.Now()
	for panel.Update() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			if err := s.Frame(dt); err != nil {
				return fmt.Errorf("terminal frame: %w", err)
			}
			panel.Draw(r.Screen())
		}
	}
	return nil
}
