package cel

import "errors"

var (
	// ErrInvalidRange is returned when a frame range has min > max.
	ErrInvalidRange = errors.New("invalid frame range")

	// ErrNotReady is returned when a box's content or effects cannot be
	// resolved yet, for example while an image is still loading.
	ErrNotReady = errors.New("not ready")

	// ErrEffectInit wraps failures to initialize an effect's backend.
	// Such a failure affects only that effect; the box still renders.
	ErrEffectInit = errors.New("effect initialization failed")

	// ErrClosed is returned by operations on a closed Scene.
	ErrClosed = errors.New("scene closed")

	// ErrNoScene is returned when a box must be attached to a scene.
	ErrNoScene = errors.New("box is not attached to a scene")
)
