// Package view renders the world into a terminal. It's a debugging
// spectator for the engine, not a game client: one cell per tile, one cell
// per entity, a HUD line with tick and connection info.
package view

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
)

// View owns a tcell screen and an input state fed by its event loop.
type View struct {
	screen  tcell.Screen
	quitCh  chan struct{}
	eventCh chan tcell.Event

	inputMu sync.Mutex
	input   protocol.InputVector
	quit    bool
}

// New creates a view; call Init before using it.
func New() *View {
	return &View{
		quitCh:  make(chan struct{}),
		eventCh: make(chan tcell.Event, 32),
	}
}

// Init sets the terminal up and starts the event polling goroutine.
func (v *View) Init() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()
	v.screen = screen

	go v.pollEvents()
	return nil
}

// Close restores the terminal.
func (v *View) Close() {
	close(v.quitCh)
	if v.screen != nil {
		v.screen.Fini()
	}
}

func (v *View) pollEvents() {
	for {
		select {
		case <-v.quitCh:
			return
		default:
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			v.handleEvent(ev)
		}
	}
}

func (v *View) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		v.inputMu.Lock()
		defer v.inputMu.Unlock()
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			v.quit = true
		case tcell.KeyLeft:
			v.toggle(protocol.XDown)
		case tcell.KeyRight:
			v.toggle(protocol.XUp)
		case tcell.KeyUp:
			v.toggle(protocol.YDown)
		case tcell.KeyDown:
			v.toggle(protocol.YUp)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q', 'Q':
				v.quit = true
			case 'a', 'A':
				v.toggle(protocol.XDown)
			case 'd', 'D':
				v.toggle(protocol.XUp)
			case 'w', 'W':
				v.toggle(protocol.YDown)
			case 's', 'S':
				v.toggle(protocol.YUp)
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
}

// toggle flips a key's state. Terminals don't deliver key-release events,
// so tapping a key toggles the corresponding input on and off.
func (v *View) toggle(t protocol.InputType) {
	if v.input[t] == protocol.Pressed {
		v.input[t] = protocol.Released
	} else {
		v.input[t] = protocol.Pressed
	}
}

// Poll implements client.InputSource.
func (v *View) Poll() protocol.InputVector {
	v.inputMu.Lock()
	defer v.inputMu.Unlock()
	return v.input
}

// QuitRequested reports whether the user asked to exit.
func (v *View) QuitRequested() bool {
	v.inputMu.Lock()
	defer v.inputMu.Unlock()
	return v.quit
}

// Render draws the world: tiles, entities, and a HUD line. alpha is the
// sub-step fraction used to interpolate entity positions for display.
func (v *View) Render(world *sim.World, player protocol.EntityID, tick uint32, state string, alpha float64) {
	if v.screen == nil {
		return
	}
	v.screen.Clear()
	screenW, screenH := v.screen.Size()

	tiles := world.Tiles()
	for y := 0; y < screenH-1 && y < tiles.Height; y++ {
		for x := 0; x < screenW && x < tiles.Width; x++ {
			if tiles.IsSolid(x, y) {
				v.setCell(x, y, '#', tcell.ColorGray)
			}
		}
	}

	world.ForEachBody(func(id protocol.EntityID, _ *sim.Input, pos *sim.Position, prev *sim.PreviousPosition, _ *sim.Velocity, _ *sim.BoundingBox) {
		ch := 'o'
		color := tcell.ColorGreen
		if id == player {
			ch = '@'
			color = tcell.ColorYellow
		}
		drawX, drawY, _ := sim.Interpolate(*prev, *pos, alpha)
		x, y := int(drawX), int(drawY)
		if x >= 0 && x < screenW && y >= 0 && y < screenH-1 {
			v.setCell(x, y, ch, color)
		}
	})

	hud := fmt.Sprintf("tick %d | %s | entities %d | q to quit", tick, state, world.Count())
	for i, ch := range hud {
		if i >= screenW {
			break
		}
		v.setCell(i, screenH-1, ch, tcell.ColorYellow)
	}

	v.screen.Show()
}

func (v *View) setCell(x, y int, ch rune, color tcell.Color) {
	v.screen.SetContent(x, y, ch, nil, tcell.StyleDefault.Foreground(color).Background(tcell.ColorBlack))
}
