// Package cel renders frame-based 2D animation scenes made of boxes.
//
// A [Box] is a scene-graph node with an animated [Transform] and opacity,
// optional [Content], an ordered stack of raster [Effect]s and an optional
// [DurationWindow] limiting the frames in which it is visible. Every box
// keeps the bitmap of its last render in a [RenderCache], so redraws never
// wait for rendering.
//
// # Rendering pipeline
//
// Changing an animated [Param], content or effect invalidates the frames the
// change can affect. When the box's current frame is among them, the box and
// its ancestors schedule a [RenderJob]. Jobs are only collected until
// [Scene.ProcessAll], which snapshots each box's state on the calling
// goroutine and hands the jobs to a worker pool. Finished jobs are handed
// back to their boxes by [Scene.Deliver]:
//
//	scene, _ := cel.NewScene(cel.DefaultConfig())
//	box := cel.NewBox("sun", cel.NewEllipseShape(64, 64, cel.Color{R: 1, G: 0.8, A: 1}))
//	box.Transform.X.SetKey(0, 0, nil)
//	box.Transform.X.SetKey(24, 300, ease.OutQuad)
//	scene.Root().AddChild(box)
//
//	for {
//		scene.Update() // Deliver, then ProcessAll
//		scene.Draw(canvas, cel.Identity)
//	}
//
// A box has at most one job in flight. Requests that arrive while its job
// is executing set a redo flag and produce exactly one follow-up job.
// Jobs refer to their box through a [Handle], so removing or disposing a box
// while it renders is safe; the result is dropped.
//
// # Frames
//
// The scene's current frame is absolute. A box's relative frame is the
// absolute frame minus the shifts of its own and its ancestors' duration
// windows, so shifting a window moves the box's animation on the timeline.
// Entering the window schedules the box; leaving it only recomposites the
// parent.
//
// # Export
//
// [Scene.RenderFrame] and [Scene.ExportRange] render arbitrary frames
// without touching the caches, in parallel, and keep results in a
// [FrameCache].
//
// The effect sub-package provides blur, drop shadow and color effects; the
// display sub-package draws cached outputs with [Ebitengine].
//
// [Ebitengine]: https://ebitengine.org
package cel
