package kernel

// Resampler changes the sample rate of a set of F32 planar buffers,
// covering the RESAMPLE chain step (spec.md §4.1 step 3). Per spec.md
// §1, sample-rate conversion kernels are an out-of-scope pluggable
// collaborator; Default below is a minimal linear-interpolation
// resampler supplied so the chain is runnable without a real SRC
// library, but any host can substitute one (e.g. a libsamplerate
// binding) behind this same interface.
type Resampler interface {
	// OutFrames returns how many output frames Resample will produce
	// for the given input frame count and rate pair.
	OutFrames(inFrames, inRate, outRate int) int
	// Resample reads inFrames samples from each of src's planes at
	// inRate and writes OutFrames(inFrames, inRate, outRate) samples to
	// each of dst's planes at outRate.
	Resample(dst, src [][]float32, inFrames, inRate, outRate int)
}

// DefaultResampler implements linear interpolation between neighboring
// input samples. It is correct (total on any valid size, including the
// inRate == outRate passthrough) but not a high-quality SRC kernel —
// the spec explicitly excludes SRC kernel design from this module's
// scope, so this exists only to make the RESAMPLE step exercisable.
type DefaultResampler struct{}

func (DefaultResampler) OutFrames(inFrames, inRate, outRate int) int {
	if inRate == outRate || inFrames == 0 {
		return inFrames
	}
	return int((int64(inFrames) * int64(outRate)) / int64(inRate))
}

func (DefaultResampler) Resample(dst, src [][]float32, inFrames, inRate, outRate int) {
	outFrames := DefaultResampler{}.OutFrames(inFrames, inRate, outRate)
	if inRate == outRate {
		for ch := range src {
			copy(dst[ch][:outFrames], src[ch][:inFrames])
		}
		return
	}
	ratio := float64(inRate) / float64(outRate)
	for ch := range src {
		s := src[ch]
		d := dst[ch]
		for i := 0; i < outFrames; i++ {
			pos := float64(i) * ratio
			lo := int(pos)
			frac := float32(pos - float64(lo))
			if lo+1 < inFrames {
				d[i] = s[lo]*(1-frac) + s[lo+1]*frac
			} else if lo < inFrames {
				d[i] = s[lo]
			} else {
				d[i] = 0
			}
		}
	}
}
