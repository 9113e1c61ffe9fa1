package synthcore

// Fixed, compile-time constants. Changing any of these is a recompile,
// not a configuration option.
const (
	SampleRate       = 44100
	BlockSize        = 256
	MaxChannels      = 16
	CrossfadeSamples = 64
	Alignment        = 16
	HRTFMaxITD       = 64
	PannerMaxLanes   = 4
	BufferChunkSize  = 16384
	MaxCommandSize   = 128
)

// commandRingCapacity and propertyRingCapacity must be powers of two;
// they bound how many in-flight mutations an external producer can have
// outstanding before it must retry or spin (see ring.Ring).
const (
	commandRingCapacity  = 1024
	propertyRingCapacity = 1024
	deletionQueueHint    = 256
	eventQueueCapacity   = 256
)
