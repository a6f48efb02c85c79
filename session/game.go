//go:build !headless

package session

import (
	"context"
	"errors"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/tomyedwab/zpzhost/display"
	"github.com/tomyedwab/zpzhost/input"
	"github.com/tomyedwab/zpzhost/media"
	"github.com/tomyedwab/zpzhost/scheduler"
)

// Game is the ebiten front end. Update collects host events and queues them
// for the guest; Draw presents the last composed frame and releases the
// scheduler for its next tick.
type Game struct {
	session   *Session
	presenter display.Presenter
	overlay   *display.Overlay
	refresh   *scheduler.ChannelRefresh
	width     int
	height    int
	events    []input.Event
}

func newGame(s *Session) (*Game, error) {
	d := s.cfg.Display
	presenter, err := display.NewPresenter(d.Renderer, d.Width, d.Height)
	if err != nil {
		return nil, err
	}
	return &Game{
		session:   s,
		presenter: presenter,
		overlay:   display.NewOverlay(d.Overlay),
		refresh:   scheduler.NewChannelRefresh(),
		width:     d.Width,
		height:    d.Height,
	}, nil
}

func (g *Game) Update() error {
	if ebiten.IsWindowBeingClosed() {
		g.session.Stop()
		return ebiten.Termination
	}
	select {
	case <-g.session.Done():
		return ebiten.Termination
	default:
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		g.overlay.Toggle()
	}
	if input.PasteRequested() {
		if err := g.session.PostText(input.ReadClipboard()); err != nil {
			g.session.logger.Warn("Dropped paste", "error", err)
		}
	}
	g.events = input.Poll(g.events[:0])
	for _, ev := range g.events {
		if ev.Key == "F12" {
			continue
		}
		if err := g.session.PostKey(ev); err != nil {
			g.session.logger.Warn("Dropped key event", "key", ev.Key, "error", err)
			break
		}
	}

	if dropped := ebiten.DroppedFiles(); dropped != nil {
		files, err := media.FilesFromFS(dropped)
		if err != nil {
			g.session.logger.Error("Failed to read dropped files", "error", err)
			return nil
		}
		drive := media.DriveA
		if ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
			drive = media.DriveB
		}
		g.session.Drop(drive, files, nil)
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.presenter.Present(screen, g.session.frame)
	if g.overlay.Visible() {
		g.overlay.Draw(screen, g.session.Labels())
	}
	g.refresh.Signal()
}

func (g *Game) Layout(_, _ int) (int, int) {
	return g.width, g.height
}

// RunWindowed opens the window and runs until it is closed or the guest
// stops. It must be called from the main goroutine.
func (s *Session) RunWindowed(ctx context.Context) error {
	g, err := newGame(s)
	if err != nil {
		return err
	}

	d := s.cfg.Display
	ebiten.SetWindowSize(d.Width*d.Scale, d.Height*d.Scale)
	ebiten.SetWindowTitle(d.Title)
	ebiten.SetWindowResizable(true)
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(d.VSync)

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.Run(ctx, g.refresh)
	}()

	gameErr := ebiten.RunGame(g)
	s.Stop()
	// Release a wait that was already registered so the loop can observe
	// the stop.
	g.refresh.Signal()
	err = <-runErr
	if gameErr != nil && !errors.Is(gameErr, ebiten.Termination) {
		return errors.Join(gameErr, err)
	}
	return err
}
