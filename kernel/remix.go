package kernel

// Remixer changes the channel count of a set of F32 planar buffers,
// covering both the DOWNMIX and UPMIX chain steps (spec.md §4.1 steps 2
// and 4). This is the "mix-matrix kernel" spec.md §1 lists as an
// external collaborator specified only by its interface; Default below
// is the one concrete implementation this module supplies so the chain
// is runnable out of the box, but a host can substitute a real
// mix-matrix library without changing chain.Plan.
type Remixer interface {
	// Remix reads nFrames samples from each of src's planes and writes
	// nFrames samples to each of dst's planes, changing channel count
	// from len(src) to len(dst).
	Remix(dst, src [][]float32, nFrames int)
}

// DefaultRemixer implements the simplest correct policy: downmix by
// averaging all source channels into every destination channel (mono
// fold-down generalizes to N->M by averaging), upmix by duplicating the
// cyclic source channel. It favors correctness and simplicity over
// psychoacoustic fidelity, matching the chain-executor's contract that
// kernels are total on valid sizes, not that they sound optimal.
type DefaultRemixer struct{}

func (DefaultRemixer) Remix(dst, src [][]float32, nFrames int) {
	nSrc := len(src)
	nDst := len(dst)
	if nSrc == nDst {
		for ch := 0; ch < nSrc; ch++ {
			copy(dst[ch][:nFrames], src[ch][:nFrames])
		}
		return
	}
	if nDst < nSrc {
		// Downmix: average all source channels into each dest channel.
		for f := 0; f < nFrames; f++ {
			var sum float32
			for ch := 0; ch < nSrc; ch++ {
				sum += src[ch][f]
			}
			avg := sum / float32(nSrc)
			for ch := 0; ch < nDst; ch++ {
				dst[ch][f] = avg
			}
		}
		return
	}
	// Upmix: duplicate source channels cyclically.
	for f := 0; f < nFrames; f++ {
		for ch := 0; ch < nDst; ch++ {
			dst[ch][f] = src[ch%nSrc][f]
		}
	}
}
