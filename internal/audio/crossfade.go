package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1]: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// CrossfadeFrames mixes one frame of the outgoing song with one frame of the
// incoming song at progress (0 = all outgoing, 1 = all incoming) along a
// smoothstep curve, and returns the clipped 16-bit result. The shorter
// input bounds the output length.
func CrossfadeFrames(outgoing, incoming []float32, progress float64) []int16 {
	gain := float32(Smoothstep(progress))
	n := min(len(outgoing), len(incoming))
	mixed := make([]float32, n)
	for i := range n {
		mixed[i] = outgoing[i]*(1-gain) + incoming[i]*gain
	}
	return Buffer{Samples: mixed}.Int16()
}
