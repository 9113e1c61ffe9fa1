package synthcore

import "testing"

func TestMixChannelsSameWidthAccumulates(t *testing.T) {
	dst := make([]float32, BlockSize*2)
	for i := range dst {
		dst[i] = 0.1
	}
	src := make([]float32, BlockSize*2)
	for i := range src {
		src[i] = 0.2
	}
	mixChannels(dst, 2, src, 2)
	for i, v := range dst {
		if diff := v - 0.3; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("index %d: got %v want 0.3", i, v)
		}
	}
}

func TestMixChannelsDownmixesBySumAndScale(t *testing.T) {
	dst := make([]float32, BlockSize)
	src := make([]float32, BlockSize*2)
	for frame := 0; frame < BlockSize; frame++ {
		src[frame*2] = 1.0
		src[frame*2+1] = 0.5
	}
	mixChannels(dst, 1, src, 2)
	want := float32(1.0+0.5) / 2
	for i, v := range dst {
		if diff := v - want; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("frame %d: got %v want %v", i, v, want)
		}
	}
}

func TestMixChannelsUpmixesRoundRobin(t *testing.T) {
	dst := make([]float32, BlockSize*4)
	src := make([]float32, BlockSize)
	for i := range src {
		src[i] = 0.7
	}
	mixChannels(dst, 4, src, 1)
	for i, v := range dst {
		if diff := v - 0.7; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("index %d: got %v want 0.7", i, v)
		}
	}
}

func TestGeneratorListEachSkipsAndCompactsExpiredEntries(t *testing.T) {
	var l generatorList
	aliveA := newAliveFlag()
	aliveB := newAliveFlag()
	genA := NewConstantGenerator(1, 0.1)
	genB := NewConstantGenerator(1, 0.2)

	l.add(genA, aliveA)
	l.add(genB, aliveB)
	aliveA.Clear()

	var visited []Generator
	l.each(func(g Generator) { visited = append(visited, g) })

	if len(visited) != 1 || visited[0] != Generator(genB) {
		t.Fatalf("expected only genB visited, got %v", visited)
	}

	var secondPass []Generator
	l.each(func(g Generator) { secondPass = append(secondPass, g) })
	if len(secondPass) != 1 {
		t.Fatalf("expired entry should have been compacted out, got %d entries", len(secondPass))
	}
}

func TestPausableStateResumeRestoresGain(t *testing.T) {
	p := newPausableState()
	block := make([]float32, BlockSize)
	for i := range block {
		block[i] = 1
	}
	p.tick(block, 1)
	for _, v := range block {
		if v != 1 {
			t.Fatalf("unpaused tick should not attenuate, got %v", v)
		}
	}

	p.Pause()
	for i := range block {
		block[i] = 1
	}
	// One block to let the fade-to-zero complete.
	p.tick(block, 1)

	p.Resume()
	for i := range block {
		block[i] = 1
	}
	p.tick(block, 1)
	if block[BlockSize-1] != 1 {
		t.Fatalf("after resume completes its fade, last sample should be back at full gain, got %v", block[BlockSize-1])
	}
}

func TestPausableStateTickIndexesPerFrameForMultiChannelBlocks(t *testing.T) {
	const channels = 2
	p := newPausableState()
	block := make([]float32, BlockSize*channels)
	for i := range block {
		block[i] = 1
	}
	p.tick(block, channels) // warm-up: unpaused, no-op.

	p.Pause()
	for i := range block {
		block[i] = 1
	}
	p.tick(block, channels) // fade-to-zero completes across this block.
	for i, v := range block {
		if v < -1e-5 || v > 1+1e-5 {
			t.Fatalf("sample %d: gain escaped [0, 1] during pause fade, got %v (stale mono indexing would extrapolate past the block)", i, v)
		}
	}
	for c := 0; c < channels; c++ {
		last := block[(BlockSize-1)*channels+c]
		if last < -1e-5 || last > 1e-5 {
			t.Fatalf("channel %d: expected the pause fade to reach silence by the last frame, got %v", c, last)
		}
	}

	p.Resume()
	for i := range block {
		block[i] = 1
	}
	p.tick(block, channels)
	for c := 0; c < channels; c++ {
		last := block[(BlockSize-1)*channels+c]
		if last != 1 {
			t.Fatalf("channel %d: expected the resume fade to reach full gain by the last frame, got %v", c, last)
		}
	}
}
