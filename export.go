package cel

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// RenderFrame renders the whole scene at absFrame into a new canvas-sized
// image, independently of the boxes' caches and current frame. Jobs are
// resolved on the calling goroutine, which must be the controlling one, and
// executed level by level on up to Config.WorkerCount goroutines. Their
// results are never delivered to boxes.
//
// Results are kept in the scene's FrameCache until the frame is invalidated.
// The returned image must not be modified.
func (s *Scene) RenderFrame(ctx context.Context, absFrame int) (*image.RGBA, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if img, ok := s.frames.Get(absFrame); ok {
		return img, nil
	}

	var levels [][]*RenderJob
	root, _, err := s.exportJob(s.root, absFrame, &levels)
	if err != nil {
		return nil, err
	}
	defer root.release()

	workers := s.cfg.WorkerCount()
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, j := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				j.execute()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("cel: render frame %d: %w", absFrame, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cel: render frame %d: %w", absFrame, err)
	}

	w := int(math.Ceil(float64(s.cfg.Width) * s.resolution))
	h := int(math.Ceil(float64(s.cfg.Height) * s.resolution))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if out := root.out; out.Bitmap != nil {
		composite(img, out.Bitmap, out.Origin, out.Opacity, BlendNormal)
	}
	s.frames.Put(absFrame, img)
	return img, nil
}

// exportJob builds and resolves the job tree for b at absFrame. Each job is
// appended to levels at its height above the leaves, so executing levels in
// order runs children before the parents compositing them.
func (s *Scene) exportJob(b *Box, absFrame int, levels *[][]*RenderJob) (*RenderJob, int, error) {
	var layers []Layer
	height := 0
	for _, c := range b.compositeOrder() {
		rel := absFrame - c.frameShift()
		if !c.visible || !c.window.Visible(rel) {
			continue
		}
		op := clamp01(c.Opacity.At(rel))
		if op < minOpacity {
			continue
		}
		cj, ch, err := s.exportJob(c, absFrame, levels)
		if err != nil {
			for _, l := range layers {
				l.Job.release()
			}
			return nil, 0, err
		}
		layers = append(layers, Layer{Job: cj, Opacity: op, Blend: c.blend})
		height = max(height, ch+1)
	}

	j := newRenderJob(s, b.handle, false)
	if !j.resolve(b, absFrame, layers) {
		j.release()
		return nil, 0, fmt.Errorf("cel: render frame %d: box %q: %w", absFrame, b.Name, ErrNotReady)
	}
	for len(*levels) <= height {
		*levels = append(*levels, nil)
	}
	(*levels)[height] = append((*levels)[height], j)
	return j, height, nil
}

// ExportRange renders the frames [from, to] and writes each as
// dir/<label>_<frame>.png. PNG encoding runs in parallel with rendering of
// the next frames. It returns the written paths in frame order.
func (s *Scene) ExportRange(ctx context.Context, dir, label string, from, to int) ([]string, error) {
	if from > to {
		return nil, fmt.Errorf("cel: export [%d, %d]: %w", from, to, ErrInvalidRange)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cel: export: mkdir %s: %w", dir, err)
	}
	safe := sanitizeLabel(label)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerCount())
	paths := make([]string, 0, to-from+1)
	for f := from; f <= to; f++ {
		if gctx.Err() != nil {
			break
		}
		img, err := s.RenderFrame(gctx, f)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%05d.png", safe, f))
		paths = append(paths, path)
		g.Go(func() error { return writePNG(path, img) })
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cel: export: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cel: export: %w", err)
	}
	Logger().Info("exported frames", "dir", dir, "from", from, "to", to)
	return paths, nil
}

// ExportAll is ExportRange over the configured frame range.
func (s *Scene) ExportAll(ctx context.Context, dir, label string) ([]string, error) {
	return s.ExportRange(ctx, dir, label, s.cfg.FirstFrame, s.cfg.LastFrame)
}

// writePNG encodes premultiplied img as a straight-alpha PNG file.
func writePNG(path string, img *image.RGBA) error {
	b := img.Rect
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()*4]
		for i := 0; i < len(src); i += 4 {
			r, g, bl, a := src[i], src[i+1], src[i+2], src[i+3]
			if a > 0 && a < 255 {
				r = uint8(min(int(r)*255/int(a), 255))
				g = uint8(min(int(g)*255/int(a), 255))
				bl = uint8(min(int(bl)*255/int(a), 255))
			}
			dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, bl, a
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "frame" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "frame"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
