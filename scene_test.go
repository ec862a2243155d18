package cel

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- Fixtures ---

var red = Color{R: 1, A: 1}

// newTestScene returns a scene that renders inline during ProcessAll.
func newTestScene(t *testing.T) *Scene {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 100, 100
	cfg.Synchronous = true
	sc, err := NewScene(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sc.Close)
	return sc
}

// newAsyncScene returns a scene backed by a worker pool.
func newAsyncScene(t *testing.T) *Scene {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 100, 100
	cfg.Workers = 2
	sc, err := NewScene(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sc.Close)
	return sc
}

func settle(t *testing.T, sc *Scene) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// recordEffect appends its name to log on every pass. Only for synchronous
// scenes.
type recordEffect struct {
	name   string
	log    *[]string
	margin float64
}

func (e recordEffect) Margin(int) float64 { return e.margin }

func (e recordEffect) Resolve(int, float64) EffectPass {
	return EffectFunc(func(*image.RGBA) error {
		*e.log = append(*e.log, e.name)
		return nil
	})
}

// gateEffect blocks every pass until open is called.
type gateEffect struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGate(t *testing.T) *gateEffect {
	g := &gateEffect{started: make(chan struct{}, 1), release: make(chan struct{})}
	t.Cleanup(g.open)
	return g
}

func (g *gateEffect) Margin(int) float64 { return 0 }

func (g *gateEffect) Resolve(int, float64) EffectPass {
	return EffectFunc(func(*image.RGBA) error {
		g.calls.Add(1)
		select {
		case g.started <- struct{}{}:
		default:
		}
		<-g.release
		return nil
	})
}

func (g *gateEffect) open() { g.once.Do(func() { close(g.release) }) }

func (g *gateEffect) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("gated pass never started")
	}
}

// --- Scene ---

func TestNewSceneRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolution = -1
	if _, err := NewScene(cfg); err == nil {
		t.Error("NewScene accepted resolution -1")
	}
}

func TestSceneRootAttached(t *testing.T) {
	sc := newTestScene(t)
	root := sc.Root()
	if root.Scene() != sc {
		t.Error("root is not attached to the scene")
	}
	if sc.Lookup(root.Handle()) != root {
		t.Error("root handle does not resolve")
	}
	if sc.Stats().Boxes != 1 {
		t.Errorf("Boxes = %d, want 1", sc.Stats().Boxes)
	}
}

func TestSceneStatsCountBoxesAndJobs(t *testing.T) {
	sc := newTestScene(t)
	g := NewGroup("g")
	g.AddChild(NewBox("a", NewRectShape(5, 5, red)))
	g.AddChild(NewBox("b", NewRectShape(5, 5, red)))
	sc.Root().AddChild(g)
	settle(t, sc)

	s := sc.Stats()
	if s.Boxes != 4 {
		t.Errorf("Boxes = %d, want 4", s.Boxes)
	}
	if s.Outstanding != 0 || s.Pending != 0 || s.InFlight != 0 {
		t.Errorf("scene not idle after Wait: %+v", s)
	}
	if s.Executed != s.Created || s.Delivered != s.Created {
		t.Errorf("Created %d, Executed %d, Delivered %d; want all equal", s.Created, s.Executed, s.Delivered)
	}
	if sc.Busy() {
		t.Error("Busy after Wait")
	}
}

func TestSceneDrawCompositesTree(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(10, 10, red))
	b.Transform.X.Set(20)
	b.Transform.Y.Set(20)
	sc.Root().AddChild(b)
	settle(t, sc)

	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	sc.Draw(dst, Identity)
	if got := dst.RGBAAt(25, 25); got.R != 255 || got.A != 255 {
		t.Errorf("inside box = %v, want opaque red", got)
	}
	if got := dst.RGBAAt(5, 5); got.A != 0 {
		t.Errorf("outside box alpha = %d, want 0", got.A)
	}
	if rb := sc.Root().RelBounds(); rb != (Rect{X: 20, Y: 20, Width: 10, Height: 10}) {
		t.Errorf("root RelBounds = %v, want the child's bounds", rb)
	}
}

func TestSceneSetResolution(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(10, 10, red))
	sc.Root().AddChild(b)
	settle(t, sc)

	if err := sc.SetResolution(0); err == nil {
		t.Error("SetResolution(0) should fail")
	}
	if err := sc.SetResolution(2); err != nil {
		t.Fatal(err)
	}
	if b.Outstanding() != 1 {
		t.Errorf("Outstanding = %d, want 1 after resolution change", b.Outstanding())
	}
	settle(t, sc)
	out, _ := b.CachedOutput()
	if got := out.Bitmap.Rect.Dx(); got != 24 {
		t.Errorf("bitmap width = %d, want 24 at resolution 2", got)
	}
}

func TestSceneEffectsVisibleToggle(t *testing.T) {
	sc := newTestScene(t)
	var log []string
	b := NewBox("b", NewRectShape(10, 10, red))
	b.AddEffect(recordEffect{name: "fx", log: &log})
	sc.Root().AddChild(b)
	settle(t, sc)
	if len(log) != 1 {
		t.Fatalf("effect passes = %d, want 1", len(log))
	}

	sc.SetEffectsVisible(false)
	settle(t, sc)
	if len(log) != 1 {
		t.Errorf("effect ran with effects hidden (passes = %d)", len(log))
	}
	if b.cache.job.EffectPasses() != 0 {
		t.Errorf("EffectPasses = %d, want 0", b.cache.job.EffectPasses())
	}
}

func TestSceneOnInvalidate(t *testing.T) {
	sc := newTestScene(t)
	var got []FrameRange
	sc.OnInvalidate(func(r FrameRange) { got = append(got, r) })
	sc.OnInvalidate(nil) // ignored

	b := NewBox("b", nil)
	sc.Root().AddChild(b)
	got = nil
	b.Invalidate(3, 7)
	if len(got) != 1 || got[0] != (FrameRange{3, 7}) {
		t.Errorf("invalidated %v, want [{3 7}]", got)
	}
}

func TestSceneBatchCoalesces(t *testing.T) {
	sc := newTestScene(t)
	a := NewBox("a", NewRectShape(5, 5, red))
	b := NewBox("b", NewRectShape(5, 5, red))
	sc.Root().AddChild(a)
	sc.Root().AddChild(b)
	settle(t, sc)
	created := sc.Stats().Created

	sc.Batch(func() {
		a.Opacity.Set(0.5)
		b.Opacity.Set(0.5)
		a.Transform.X.Set(3)
		if sc.Outstanding() != 0 {
			t.Errorf("jobs created while blocked: %d", sc.Outstanding())
		}
	})

	if got := sc.Stats().Created - created; got != 3 {
		t.Errorf("jobs created = %d, want 3 (one per box)", got)
	}
	if a.Outstanding() != 1 || b.Outstanding() != 1 || sc.Root().Outstanding() != 1 {
		t.Errorf("Outstanding a=%d b=%d root=%d, want 1 each",
			a.Outstanding(), b.Outstanding(), sc.Root().Outstanding())
	}
}

func TestSceneBlockScheduleNests(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(5, 5, red))
	sc.Root().AddChild(b)
	settle(t, sc)

	sc.BlockSchedule()
	sc.BlockSchedule()
	b.ScheduleUpdate()
	sc.UnblockSchedule()
	sc.Flush() // still blocked once
	if b.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d while blocked, want 0", b.Outstanding())
	}
	sc.UnblockSchedule()
	sc.Flush()
	if b.Outstanding() != 1 {
		t.Errorf("Outstanding = %d after Flush, want 1", b.Outstanding())
	}
}

func TestSceneCloseRejectsWork(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synchronous = true
	sc, err := NewScene(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sc.Close()
	sc.Close()
	if err := sc.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait after Close = %v, want ErrClosed", err)
	}
	if _, err := sc.RenderFrame(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame after Close = %v, want ErrClosed", err)
	}
	if sc.ProcessAll() != 0 {
		t.Error("ProcessAll submitted work after Close")
	}
}

func TestSceneAsyncRenders(t *testing.T) {
	sc := newAsyncScene(t)
	for i := range 20 {
		b := NewBox("b", NewEllipseShape(8, 8, red))
		b.Transform.X.Set(float64(i * 4))
		sc.Root().AddChild(b)
	}
	settle(t, sc)
	for _, b := range sc.Root().Children() {
		if out, _ := b.CachedOutput(); out.Empty() {
			t.Fatalf("box %q has no output after Wait", b.Name)
		}
	}
	if out, _ := sc.Root().CachedOutput(); out.Empty() {
		t.Error("root has no output after Wait")
	}
}

func TestSceneUpdateInDebugMode(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	sc := newTestScene(t)
	sc.SetDebugMode(true)
	t.Cleanup(func() { sc.SetDebugMode(false) })

	sc.Root().AddChild(NewBox("b", NewRectShape(5, 5, red)))
	sc.Update()
	if !strings.Contains(buf.String(), "msg=update") {
		t.Errorf("debug Update did not log timing; log:\n%s", buf.String())
	}
}

func TestDebugModePanicsOnDisposedBox(t *testing.T) {
	sc := newTestScene(t)
	sc.SetDebugMode(true)
	t.Cleanup(func() { sc.SetDebugMode(false) })

	b := NewBox("gone", nil)
	b.Dispose()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if !strings.Contains(r.(string), "disposed box") {
			t.Errorf("panic = %v", r)
		}
	}()
	sc.Root().AddChild(b)
}

func TestLoggerReportsEffectFailure(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(5, 5, red))
	b.AddEffect(failEffect{})
	sc.Root().AddChild(b)
	settle(t, sc)

	if !strings.Contains(buf.String(), "effect failed") {
		t.Errorf("log missing effect failure:\n%s", buf.String())
	}
}

type failEffect struct{}

func (failEffect) Margin(int) float64 { return 0 }
func (failEffect) Resolve(int, float64) EffectPass {
	return EffectFunc(func(*image.RGBA) error { return ErrEffectInit })
}
