package cel

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestRenderFrameIndependentOfCurrentFrame(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(10, 10, red))
	b.Transform.X.SetKey(0, 0, nil)
	b.Transform.X.SetKey(10, 50, nil)
	sc.Root().AddChild(b)
	settle(t, sc)
	seq := b.cache.Seq()

	img, err := sc.RenderFrame(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if img.Rect.Dx() != 100 || img.Rect.Dy() != 100 {
		t.Errorf("canvas = %v, want 100x100", img.Rect)
	}
	if img.RGBAAt(55, 5).A != 255 || img.RGBAAt(5, 5).A != 0 {
		t.Error("frame 10 not rendered at its animated position")
	}
	if sc.Frame() != 0 {
		t.Error("RenderFrame moved the scene frame")
	}
	if b.cache.Seq() != seq {
		t.Error("export delivered to the box cache")
	}
}

func TestRenderFrameUsesFrameCache(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(10, 10, red))
	sc.Root().AddChild(b)

	first, err := sc.RenderFrame(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sc.RenderFrame(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second render of an unchanged frame was not cached")
	}

	b.Opacity.Set(0.5)
	third, err := sc.RenderFrame(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("cache served a frame after it was invalidated")
	}
	if a := third.RGBAAt(5, 5).A; a < 126 || a > 129 {
		t.Errorf("alpha = %d, want about 128", a)
	}
}

func TestRenderFrameSkipsHiddenAndOutOfWindow(t *testing.T) {
	sc := newTestScene(t)
	hidden := NewBox("hidden", NewRectShape(10, 10, red))
	hidden.SetVisible(false)
	late := NewBox("late", NewRectShape(10, 10, red))
	late.Transform.X.Set(20)
	if err := late.SetDurationWindow(5, 9); err != nil {
		t.Fatal(err)
	}
	sc.Root().AddChild(hidden)
	sc.Root().AddChild(late)

	img, err := sc.RenderFrame(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if img.RGBAAt(5, 5).A != 0 || img.RGBAAt(25, 5).A != 0 {
		t.Error("hidden or out-of-window box was exported at frame 0")
	}
	img, err = sc.RenderFrame(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if img.RGBAAt(25, 5).A != 255 {
		t.Error("box missing inside its window")
	}
}

func TestRenderFrameNotReady(t *testing.T) {
	sc := newTestScene(t)
	sc.Root().AddChild(NewBox("pic", NewPicture(nil)))
	_, err := sc.RenderFrame(context.Background(), 0)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestRenderFrameCanceled(t *testing.T) {
	sc := newTestScene(t)
	sc.Root().AddChild(NewBox("b", NewRectShape(10, 10, red)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sc.RenderFrame(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExportRangeWritesPNGs(t *testing.T) {
	sc := newTestScene(t)
	b := NewBox("b", NewRectShape(10, 10, Color{R: 1, A: 0.5}))
	sc.Root().AddChild(b)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := sc.ExportRange(context.Background(), dir, "my shot", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"my_shot_00002.png", "my_shot_00003.png", "my_shot_00004.png"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Errorf("path %d = %s, want %s", i, filepath.Base(p), want[i])
		}
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	img, ok := decoded.(*image.NRGBA)
	if !ok {
		t.Fatalf("decoded %T, want *image.NRGBA", decoded)
	}
	// Straight alpha in the file: full red at half alpha.
	if got := img.NRGBAAt(5, 5); got != (color.NRGBA{255, 0, 0, 128}) {
		t.Errorf("pixel = %v, want {255 0 0 128}", got)
	}
}

func TestExportRangeRejectsInvertedRange(t *testing.T) {
	sc := newTestScene(t)
	if _, err := sc.ExportRange(context.Background(), t.TempDir(), "x", 5, 1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestExportAllUsesConfiguredRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 8, 8
	cfg.FirstFrame, cfg.LastFrame = 0, 2
	cfg.Synchronous = true
	sc, err := NewScene(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	paths, err := sc.ExportAll(context.Background(), t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 || filepath.Base(paths[0]) != "frame_00000.png" {
		t.Errorf("paths = %v", paths)
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := map[string]string{
		"":          "frame",
		"  ":        "frame",
		"shot-1.v2": "shot-1.v2",
		"a/b c":     "a_b_c",
	}
	for in, want := range tests {
		if got := sanitizeLabel(in); got != want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFrameCacheDroppedForOffscreenCompositeChanges(t *testing.T) {
	blue := Color{B: 1, A: 1}
	tests := []struct {
		name  string
		edit  func(b *Box)
		pixel color.RGBA
	}{
		{"blend mode", func(b *Box) { b.SetBlendMode(BlendErase) }, color.RGBA{}},
		{"z-order", func(b *Box) { b.SetZIndex(-1) }, color.RGBA{255, 0, 0, 255}},
		{"removal", func(b *Box) { b.RemoveFromParent() }, color.RGBA{255, 0, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestScene(t)
			under := NewBox("under", NewRectShape(10, 10, red))
			b := NewBox("b", NewRectShape(10, 10, blue))
			if err := b.SetDurationWindow(10, 20); err != nil {
				t.Fatal(err)
			}
			sc.Root().AddChild(under)
			sc.Root().AddChild(b)
			settle(t, sc)
			// The scene sits at frame 0, outside b's window.
			if b.drawnOnParent {
				t.Fatal("box drawn outside its window")
			}

			before, err := sc.RenderFrame(context.Background(), 15)
			if err != nil {
				t.Fatal(err)
			}
			if got := before.RGBAAt(5, 5); got != (color.RGBA{0, 0, 255, 255}) {
				t.Fatalf("pixel before = %v, want blue", got)
			}

			tt.edit(b)
			after, err := sc.RenderFrame(context.Background(), 15)
			if err != nil {
				t.Fatal(err)
			}
			if after == before {
				t.Error("exported frame served from cache after the edit")
			}
			if got := after.RGBAAt(5, 5); got != tt.pixel {
				t.Errorf("pixel after = %v, want %v", got, tt.pixel)
			}
		})
	}
}
