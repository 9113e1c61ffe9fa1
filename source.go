package synthcore

// Property ids for Source (§3 Source, §6 property_set_* verb set).
// Declared once as an immutable package-level slice; per §9's resolved
// open question, descriptors never change after init, so no version
// tag is needed. Numbering follows the original engine's SYZ_P_*
// ordering where a property exists there (gain, azimuth, elevation,
// panner_strategy, position, distance_model/ref/max/rolloff,
// closeness_boost(+distance)); panning_scalar is exposed here as
// PropPan, kept on the [-1, 1] convention already used by this
// module's constant-power law rather than the original's [0, 1]
// scalar, since the filtered sources carry only panning_scalar's 0.5
// default and no range-validation call site to settle the convention
// against (recorded as a resolved open question in the design notes).
const (
	PropGain int = iota + 1
	PropPan
	PropPaused
	PropAzimuth
	PropElevation
	PropPannerStrategy
	PropPosition
	PropDistanceModel
	PropDistanceRef
	PropDistanceMax
	PropRolloff
	PropClosenessBoost
	PropClosenessBoostDistance
)

var baseSourceDescriptors = []PropertyDescriptor{
	{ID: PropGain, Kind: KindPropDouble, Min: 0, Max: 16},
	{ID: PropPaused, Kind: KindPropInt, Min: 0, Max: 1},
}

var panningDescriptors = []PropertyDescriptor{
	{ID: PropPan, Kind: KindPropDouble, Min: -1, Max: 1},
	{ID: PropAzimuth, Kind: KindPropDouble, Min: -180, Max: 180},
	{ID: PropElevation, Kind: KindPropDouble, Min: -90, Max: 90},
	{ID: PropPannerStrategy, Kind: KindPropInt, Min: 0, Max: 1},
}

var spatialDescriptors = []PropertyDescriptor{
	{ID: PropPosition, Kind: KindPropVec3},
	{ID: PropDistanceModel, Kind: KindPropInt, Min: 0, Max: 3},
	{ID: PropDistanceRef, Kind: KindPropDouble, Min: 0, Max: 1 << 20},
	{ID: PropDistanceMax, Kind: KindPropDouble, Min: 0, Max: 1 << 20},
	{ID: PropRolloff, Kind: KindPropDouble, Min: 0, Max: 1 << 10},
	{ID: PropClosenessBoost, Kind: KindPropDouble, Min: 0, Max: 1 << 10},
	{ID: PropClosenessBoostDistance, Kind: KindPropDouble, Min: 0, Max: 1 << 20},
}

// SourceKind distinguishes the three source flavors the original
// engine builds as a DirectSource/PannedSource/Source3D hierarchy
// (SYZ_OTYPE_DIRECT_SOURCE, SYZ_OTYPE_PANNED_SOURCE,
// SYZ_OTYPE_SOURCE_3D): a plain passthrough into the direct buffer, a
// manually-panned lane, or a lane whose angle is derived every block
// from a 3D position against the listener's pose.
type SourceKind int

const (
	SourceDirect SourceKind = iota
	SourcePanned
	SourceSpatial
)

// Source consumes zero or more Generators and writes into either the
// direct buffer or a panner lane (§3 Source, §4.H).
type Source struct {
	ctx   *Context
	alive *aliveFlag

	endpointID uint64
	channels   int

	generators generatorList
	gain       *fader
	pausable   *pausableState

	kind           SourceKind
	lane           *Lane
	pannerStrategy PannerStrategy
	position       [3]float64
	distance       distanceParams

	block []float32 // length channels*BlockSize, this Source's own scratch
}

func (s *Source) handleKind() handleKind { return handleKindSource }

// newSource is called only from the audio thread (via a command), per
// §5's "shared resources... owned exclusively by the audio thread;
// external mutations happen only via commands".
func newSource(ctx *Context, channels int, kind SourceKind) *Source {
	s := &Source{
		ctx:        ctx,
		alive:      newAliveFlag(),
		endpointID: ctx.nextEndpointID.Add(1),
		channels:   channels,
		gain:       newFader(1),
		pausable:   newPausableState(),
		kind:       kind,
		distance:   defaultDistanceParams(),
		block:      make([]float32, channels*BlockSize),
	}
	if kind == SourcePanned || kind == SourceSpatial {
		// The original engine's PannedSource defaults its
		// panner_strategy to HRTF; Source3D inherits the same default.
		s.pannerStrategy = PannerHRTF
		lane, err := ctx.panner.AllocateLane(s.pannerStrategy)
		if err == nil {
			s.lane = lane
		}
	}
	return s
}

func (s *Source) Descriptors() []PropertyDescriptor {
	switch s.kind {
	case SourceSpatial:
		return append(append(append([]PropertyDescriptor{}, baseSourceDescriptors...), panningDescriptors...), spatialDescriptors...)
	case SourcePanned:
		return append(append([]PropertyDescriptor{}, baseSourceDescriptors...), panningDescriptors...)
	default:
		return baseSourceDescriptors
	}
}

func (s *Source) GetProperty(id int) (PropertyValue, error) {
	switch id {
	case PropGain:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: float64(s.gain.Target())}, nil
	case PropPaused:
		v := int64(0)
		if s.pausable.IsPaused() {
			v = 1
		}
		return PropertyValue{Kind: KindPropInt, IntVal: v}, nil
	case PropPan:
		if s.lane == nil {
			break
		}
		return PropertyValue{Kind: KindPropDouble, DoubleVal: float64(s.lane.pan)}, nil
	case PropAzimuth:
		if s.lane == nil {
			break
		}
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.lane.azimuth}, nil
	case PropElevation:
		if s.lane == nil {
			break
		}
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.lane.elevation}, nil
	case PropPannerStrategy:
		return PropertyValue{Kind: KindPropInt, IntVal: int64(s.pannerStrategy)}, nil
	case PropPosition:
		return PropertyValue{Kind: KindPropVec3, Vec3Val: s.position}, nil
	case PropDistanceModel:
		return PropertyValue{Kind: KindPropInt, IntVal: int64(s.distance.model)}, nil
	case PropDistanceRef:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.distance.ref}, nil
	case PropDistanceMax:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.distance.max}, nil
	case PropRolloff:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.distance.rolloff}, nil
	case PropClosenessBoost:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.distance.closenessBoost}, nil
	case PropClosenessBoostDistance:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: s.distance.closenessBoostDistance}, nil
	}
	return PropertyValue{}, newErr(KindPropertyDoesNotExist, "no such property on Source")
}

func (s *Source) SetProperty(id int, v PropertyValue) error {
	switch id {
	case PropGain:
		s.gain.setValue(float32(v.DoubleVal))
		return nil
	case PropPaused:
		if v.IntVal != 0 {
			s.pausable.Pause()
		} else {
			s.pausable.Resume()
		}
		return nil
	case PropPan:
		if s.lane == nil {
			break
		}
		s.lane.SetPan(float32(v.DoubleVal))
		return nil
	case PropAzimuth:
		if s.lane == nil {
			break
		}
		s.lane.SetPanningAngles(v.DoubleVal, s.lane.elevation)
		return nil
	case PropElevation:
		if s.lane == nil {
			break
		}
		s.lane.SetPanningAngles(s.lane.azimuth, v.DoubleVal)
		return nil
	case PropPannerStrategy:
		if s.lane == nil {
			break
		}
		s.setPannerStrategy(PannerStrategy(v.IntVal))
		return nil
	case PropPosition:
		if s.kind != SourceSpatial {
			break
		}
		s.position = v.Vec3Val
		return nil
	case PropDistanceModel:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.model = DistanceModel(v.IntVal)
		return nil
	case PropDistanceRef:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.ref = v.DoubleVal
		return nil
	case PropDistanceMax:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.max = v.DoubleVal
		return nil
	case PropRolloff:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.rolloff = v.DoubleVal
		return nil
	case PropClosenessBoost:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.closenessBoost = v.DoubleVal
		return nil
	case PropClosenessBoostDistance:
		if s.kind != SourceSpatial {
			break
		}
		s.distance.closenessBoostDistance = v.DoubleVal
		return nil
	}
	return newErr(KindPropertyDoesNotExist, "no such property on Source")
}

// setPannerStrategy tears down the current lane and reallocates one
// against the new strategy, carrying over its panning state. Grounded
// on PannedSource's needs_panner_set/valid_lane bookkeeping in the
// original engine, which defers exactly this reallocation to the next
// render rather than swapping panner implementations mid-lane.
func (s *Source) setPannerStrategy(strategy PannerStrategy) {
	if strategy == s.pannerStrategy {
		return
	}
	old := s.lane
	newLane, err := s.ctx.panner.AllocateLane(strategy)
	if err != nil {
		return
	}
	if old != nil {
		newLane.pan = old.pan
		newLane.azimuth = old.azimuth
		newLane.elevation = old.elevation
		newLane.scalarMode = old.scalarMode
		newLane.retarget()
		old.Release()
	}
	s.lane = newLane
	s.pannerStrategy = strategy
}

func (s *Source) EndpointID() uint64 { return s.endpointID }

// Endpoint returns the routable Endpoint for this source's output:
// Pull up/down-mixes the source's already-rendered block into the
// router's channel-interleaved width, so a caller can additionally
// send the source to a GlobalEffect's input via ConfigureRoute, on top
// of its ordinary direct-buffer or panner-lane output (§4.E, §3
// Effect). Push is a no-op; nothing ever routes into a Source's input.
func (s *Source) Endpoint() Endpoint {
	return Endpoint{
		ID: s.endpointID,
		Pull: func(dst []float32) bool {
			if !s.alive.Load() {
				return false
			}
			for i := range dst {
				dst[i] = 0
			}
			mixChannels(dst, s.ctx.cfg.Channels, s.block, s.channels)
			return true
		},
		Push: func(src []float32) {},
	}
}
func (s *Source) Pause()            { s.pausable.Pause() }
func (s *Source) Resume()           { s.pausable.Resume() }
func (s *Source) IsPaused() bool    { return s.pausable.IsPaused() }

// AddGenerator attaches gen to this source. Safe to call only from the
// audio thread (i.e. from inside a command).
func (s *Source) AddGenerator(gen Generator, alive *aliveFlag) {
	s.generators.add(gen, alive)
}

// RemoveGenerator detaches gen. If applied within the same block as a
// prior AddGenerator, per §8's testable property, gen will not have
// been invoked during that block's rendering, since fillBlock has not
// yet run for the block in which both commands were drained.
func (s *Source) RemoveGenerator(gen Generator) {
	s.generators.remove(gen)
}

// fillBlock implements §4.H's seven-step Source contract.
func (s *Source) fillBlock() {
	premix := s.ctx.blocks.Acquire()
	defer premix.Release()

	for i := range s.block {
		s.block[i] = 0
	}

	if s.pausable.IsPaused() {
		s.pausable.tick(s.block, s.channels)
		s.routeOutput()
		return
	}

	s.generators.each(func(gen Generator) {
		genChannels := gen.Channels()
		if genChannels == 0 {
			return
		}
		if genChannels == s.channels {
			scratch := premix.Data()[:genChannels*BlockSize]
			for i := range scratch {
				scratch[i] = 0
			}
			gen.Run(scratch)
			for i := range s.block {
				s.block[i] += scratch[i]
			}
			return
		}
		scratch := premix.Data()[:genChannels*BlockSize]
		for i := range scratch {
			scratch[i] = 0
		}
		gen.Run(scratch)
		mixChannels(s.block, s.channels, scratch, genChannels)
	})

	if s.kind == SourceSpatial {
		s.updateSpatialState()
	}

	s.applyGainPerChannel()
	s.pausable.tick(s.block, s.channels)
	s.routeOutput()
}

// updateSpatialState derives this block's azimuth/elevation/distance
// against the listener's current pose and drives them into the lane,
// then applies distance attenuation to the source's own samples (the
// original engine's Source3D applies its gain_3d this way, ahead of
// the panner split, which only needs an angle).
func (s *Source) updateSpatialState() {
	if s.lane == nil {
		return
	}
	listenerPos, listenerOrientation := s.ctx.ListenerPose()
	azimuth, elevation, distance := listenerRelativeAngles(listenerPos, listenerOrientation, s.position)
	s.lane.SetPanningAngles(azimuth, elevation)

	g := s.distance.gain(distance)
	if g != 1 {
		for i := range s.block {
			s.block[i] *= g
		}
	}
}

// applyGainPerChannel applies the gain fader identically across every
// interleaved channel (a single fader drives all channels together,
// matching the spec's "apply the gain fader sample-by-sample" without
// per-channel divergence).
func (s *Source) applyGainPerChannel() {
	applyFaderPerChannel(s.gain, s.block, s.channels)
}

func (s *Source) routeOutput() {
	switch s.kind {
	case SourcePanned, SourceSpatial:
		if s.lane != nil && s.channels == 1 {
			s.lane.WriteMono(s.block)
		}
	case SourceDirect:
		s.ctx.accumulateDirect(s.block, s.channels)
	}
}

// destroy marks the source expired and releases its panner lane; its
// generator list is left as is. Called exactly once, from the deletion
// queue (deferred in both headless and driven mode, or immediately
// once the queue has begun shutdown).
func (s *Source) destroy() {
	s.alive.Clear()
	if s.lane != nil {
		s.lane.Release()
	}
}
