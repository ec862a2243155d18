package effect

import (
	"math"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// gaussianKernel returns a normalized 1D Gaussian kernel using radius as
// sigma. The kernel has 2*ceil(3*radius)+1 taps; radius <= 0 yields [1].
func gaussianKernel(radius float64) []float32 {
	if radius <= 0 {
		return []float32{1}
	}
	half := int(math.Ceil(radius * 3))
	size := half*2 + 1
	kernel := make([]float32, size)

	twoSigmaSq := 2 * radius * radius
	sum := 0.0
	for i := range size {
		x := float64(i - half)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(v)
		sum += v
	}
	inv := float32(1 / sum)
	for i := range kernel {
		kernel[i] *= inv
	}
	return kernel
}

const maxCachedKernels = 64

// kernelCache shares kernels between workers. Radii are quantized to 0.01;
// concurrent misses for the same radius build the kernel once.
type kernelCache struct {
	mu      sync.RWMutex
	kernels map[int][]float32
	group   singleflight.Group
}

var kernels = &kernelCache{kernels: make(map[int][]float32)}

func (c *kernelCache) get(radius float64) []float32 {
	key := int(math.Round(radius * 100))

	c.mu.RLock()
	k, ok := c.kernels[key]
	c.mu.RUnlock()
	if ok {
		return k
	}

	v, _, _ := c.group.Do(strconv.Itoa(key), func() (any, error) {
		c.mu.RLock()
		k, ok := c.kernels[key]
		c.mu.RUnlock()
		if ok {
			return k, nil
		}
		k = gaussianKernel(float64(key) / 100)
		c.mu.Lock()
		if len(c.kernels) >= maxCachedKernels {
			clear(c.kernels)
		}
		c.kernels[key] = k
		c.mu.Unlock()
		return k, nil
	})
	return v.([]float32)
}

func (c *kernelCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kernels)
}
