package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/milk9111/stagesync/audio"
	"github.com/milk9111/stagesync/catalogs"
	"github.com/milk9111/stagesync/clock"
	"github.com/milk9111/stagesync/config"
	"github.com/milk9111/stagesync/interact"
	"github.com/milk9111/stagesync/metrics"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/stage"
	"github.com/milk9111/stagesync/viewport"
	"golang.org/x/image/colornames"
)

const eventLogSize = 6

type Game struct {
	cfg     config.Config
	catalog string
	debug   bool

	stage     *stage.Stage
	poller    *interact.Poller
	offscreen *ebiten.Image
	lb        viewport.Letterbox

	watcher *phase.Watcher
	output  audio.Output
	// audioBase is the output position that corresponds to performance time
	// zero; it is re-anchored whenever performance time jumps.
	audioBase time.Duration
	lastSync  time.Duration

	started time.Time
	frames  int
	events  []string
}

func loadStageFile(name string) (*phase.StageFile, error) {
	data, err := catalogs.Load(name)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", name, err)
	}
	return phase.ParseStageFile(data)
}

func NewGame(cfg config.Config) (*Game, error) {
	sf, err := loadStageFile(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	engine := audio.NewEngine(audio.DefaultSampleRate)
	engine.SetMaster(cfg.Volume)
	engine.SetMuted(cfg.Muted)

	st, err := stage.New(sf, stage.Options{
		Width:           cfg.StageWidth,
		Height:          cfg.StageHeight,
		BPM:             cfg.BPM,
		BeatsPerMeasure: cfg.BeatsPerMeasure,
		SyncTolerance:   cfg.SyncTolerance,
		Metrics: metrics.Config{
			MinFPS:        cfg.MinFPS,
			MaxRenderTime: cfg.MaxRenderTime,
			Sustain:       cfg.WarnSustain,
		},
		GeometryCacheSize: cfg.GeometryCacheSize,
		MetronomeClick:    cfg.MetronomeClick,
		LoadScript:        catalogs.LoadScript,
		Audio:             engine,
	})
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:       cfg,
		catalog:   cfg.Catalog,
		debug:     cfg.Debug,
		stage:     st,
		poller:    interact.NewPoller(),
		offscreen: ebiten.NewImage(int(cfg.StageWidth), int(cfg.StageHeight)),
		started:   time.Now(),
	}

	if out, err := audio.NewEbitenOutput(engine); err != nil {
		log.Printf("audio: output disabled: %v", err)
	} else {
		g.output = out
		g.output.Play()
	}

	if cfg.Watch {
		w, err := phase.NewWatcher(catalogs.DiskPath(cfg.Catalog), catalogs.ScriptsDir)
		if err != nil {
			log.Printf("catalog: watch disabled: %v", err)
		} else {
			g.watcher = w
		}
	}
	return g, nil
}

func (g *Game) Update() error {
	g.frames++
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		return ebiten.Termination
	}
	g.handleKeys()

	for _, ev := range g.poller.Poll(g.lb) {
		g.stage.Pointer(ev)
	}
	g.reloadChanged()

	g.stage.Tick(time.Second / time.Duration(ebiten.TPS()))
	g.checkSync()

	for _, ev := range g.stage.Events() {
		if g.debug {
			log.Printf("stage: %s", ev)
		}
		g.events = append(g.events, ev.String())
		if len(g.events) > eventLogSize {
			g.events = g.events[len(g.events)-eventLogSize:]
		}
	}
	return nil
}

func (g *Game) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		if g.stage.State() == clock.Playing {
			g.stage.Pause()
		} else {
			g.stage.Play()
			g.anchorAudio()
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		g.stage.Stop()
		g.anchorAudio()
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.stage.Reset()
		g.anchorAudio()
	case inpututil.IsKeyJustPressed(ebiten.KeyM):
		g.stage.Audio().SetMuted(!g.stage.Audio().Muted())
	case inpututil.IsKeyJustPressed(ebiten.KeyF1):
		g.debug = !g.debug
	case inpututil.IsKeyJustPressed(ebiten.KeyUp):
		g.stage.SetBPM(g.stage.Stats().BPM + 5)
	case inpututil.IsKeyJustPressed(ebiten.KeyDown):
		g.stage.SetBPM(g.stage.Stats().BPM - 5)
	case inpututil.IsKeyJustPressed(ebiten.KeyLeft):
		g.stage.Seek(g.stage.Time() - time.Second)
		g.anchorAudio()
	case inpututil.IsKeyJustPressed(ebiten.KeyRight):
		g.stage.Seek(g.stage.Time() + time.Second)
		g.anchorAudio()
	}

	for i, key := range []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4, ebiten.Key5, ebiten.Key6, ebiten.Key7, ebiten.Key8, ebiten.Key9} {
		if inpututil.IsKeyJustPressed(key) {
			g.requestPhase(i)
		}
	}
}

// requestPhase moves the selected entity, or the first character, to its
// n-th phase. Shift aligns the change to the next beat; Ctrl queues it behind
// a running transition.
func (g *Game) requestPhase(n int) {
	id, ok := g.stage.Selected()
	if !ok {
		id, ok = g.firstCharacter()
	}
	if !ok {
		return
	}
	phases := g.stage.Catalog().Phases(id)
	if n >= len(phases) {
		return
	}
	req := phase.ChangeRequest{EntityID: id, ToPhaseID: phases[n].ID, Timing: phase.TimingImmediate}
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		req.Timing = phase.TimingNextBeat
	}
	req.Queue = ebiten.IsKeyPressed(ebiten.KeyControl)
	if err := g.stage.RequestPhase(req); err != nil {
		log.Printf("stage: request %s: %v", req, err)
	}
}

func (g *Game) firstCharacter() (string, bool) {
	cat := g.stage.Catalog()
	for _, id := range cat.Entities() {
		if k, _ := cat.Kind(id); k == phase.KindCharacter {
			return id, true
		}
	}
	return "", false
}

// reloadChanged swaps in the stage file once an edit to it or to a condition
// script has settled. An edited stage file is parsed from the settled content;
// a script edit reloads the stage file so its rules recompile.
func (g *Game) reloadChanged() {
	if g.watcher == nil {
		return
	}
	if err := g.watcher.Err(); err != nil {
		log.Printf("catalog: watch: %v", err)
	}
	changes := g.watcher.Poll()
	if len(changes) == 0 {
		return
	}

	var sf *phase.StageFile
	var err error
	last := changes[len(changes)-1]
	switch {
	case last.Path == filepath.Clean(catalogs.DiskPath(g.catalog)) && last.Err == nil:
		sf, err = phase.ParseStageFile(last.Data)
	default:
		sf, err = loadStageFile(g.catalog)
	}
	if err != nil {
		log.Printf("catalog: reload %s: %v", last.Path, err)
		return
	}
	if err := g.stage.Reload(sf); err != nil {
		log.Printf("catalog: %v", err)
		return
	}
	log.Printf("catalog: reloaded %s", g.catalog)
}

func (g *Game) anchorAudio() {
	if g.output == nil {
		return
	}
	g.audioBase = g.output.Position() - g.stage.Time()
	g.lastSync = g.stage.Time()
}

// checkSync compares performance time with the audio device clock every
// sync interval while playing.
func (g *Game) checkSync() {
	if g.output == nil || g.stage.State() != clock.Playing {
		return
	}
	now := g.stage.Time()
	if now-g.lastSync < g.cfg.SyncInterval {
		return
	}
	g.lastSync = now
	if _, corrected := g.stage.CheckSync(g.output.Position() - g.audioBase); corrected {
		g.lastSync = g.stage.Time()
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()

	screen.Fill(colornames.Black)
	g.offscreen.Clear()
	g.stage.Draw(g.offscreen)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(g.lb.Scale(), g.lb.Scale())
	op.GeoM.Translate(g.lb.RenderX, g.lb.RenderY)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(g.offscreen, op)

	if g.debug {
		ebitenutil.DebugPrint(screen, g.overlay())
	}
	g.stage.ObserveFrame(time.Since(g.started), time.Since(start))
}

func (g *Game) overlay() string {
	s := g.stage.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Frames: %d    FPS: %.2f    TPS: %.2f\n", g.frames, ebiten.ActualFPS(), ebiten.ActualTPS())
	fmt.Fprintf(&b, "%s %s  bpm %.0f  corrections %d\n", s.Clock, s.Time.Truncate(time.Millisecond), s.BPM, s.Corrections)
	fmt.Fprintf(&b, "transitions started %d completed %d failed %d superseded %d\n",
		s.Transitions.Started, s.Transitions.Completed, s.Transitions.Failed, s.Transitions.Superseded)
	fmt.Fprintf(&b, "queue %d backlog %d  geometry %d/%d  render avg %s max %s\n",
		s.Queue.Pending, s.Queue.Backlogged, s.GeometryHits, s.GeometryHits+s.GeometryMisses,
		s.Metrics.AvgRenderTime, s.Metrics.MaxRenderTime)
	for _, id := range g.stage.Entities() {
		p, _ := g.stage.ActivePhase(id)
		fmt.Fprintf(&b, "  %s: %s\n", id, p)
	}
	for _, l := range g.stage.Audio().Levels() {
		fmt.Fprintf(&b, "  %s %s %.2f\n", l.EntityID, l.Track, l.Level)
	}
	for _, ev := range g.events {
		b.WriteString(ev)
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *Game) LayoutF(outsideWidth, outsideHeight float64) (float64, float64) {
	g.lb = viewport.Fit(outsideWidth, outsideHeight, g.cfg.StageWidth, g.cfg.StageHeight)
	return outsideWidth, outsideHeight
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	panic("shouldn't use Layout")
}

func (g *Game) Close() {
	if g.watcher != nil {
		_ = g.watcher.Close()
	}
	if g.output != nil {
		_ = g.output.Close()
	}
	g.stage.Close()
}
