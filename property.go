package synthcore

import (
	"sync"

	"synthcore/internal/ring"
)

// PropertyKind is the tag of the PropertyValue union (§3 PropertyValue).
type PropertyKind int

const (
	KindPropInt PropertyKind = iota + 1
	KindPropDouble
	KindPropVec3
	KindPropVec6
	KindPropObject
)

// PropertyValue is a tagged union over {int, double, vec3, vec6,
// object-reference}. Only the field matching Kind is meaningful.
type PropertyValue struct {
	Kind      PropertyKind
	IntVal    int64
	DoubleVal float64
	Vec3Val   [3]float64
	Vec6Val   [6]float64
	ObjectVal Handle
}

// PropertyDescriptor declares one property of a class: its stable
// numeric id, declared kind, and either an inclusive numeric range or
// a required object capability (§3 PropertyValue, §4.D).
type PropertyDescriptor struct {
	ID         int
	Kind       PropertyKind
	Min, Max   float64    // meaningful for numeric kinds
	Capability handleKind // meaningful for KindPropObject
}

// PropertyHost is the §4.D dispatch surface: Descriptors lists the
// declared properties, GetProperty/SetProperty read and apply them.
// Concrete Generators/Sources/Effects implement it directly; there is
// no base-class chaining (Source assembles its descriptor list per
// SourceKind instead).
type PropertyHost interface {
	Handled
	Descriptors() []PropertyDescriptor
	GetProperty(id int) (PropertyValue, error)
	SetProperty(id int, v PropertyValue) error
}

// validateProperty checks value against host's declared descriptor
// for id, without applying it. PropertyTypeError if the tag disagrees
// with the declared kind, RangeError if numeric and out of [min,max],
// PropertyDoesNotExist if id is unknown, HandleTypeError if an object
// value does not satisfy the required capability.
func validateProperty(host PropertyHost, tables *handleTable, id int, value PropertyValue) error {
	var desc *PropertyDescriptor
	for _, d := range host.Descriptors() {
		if d.ID == id {
			desc = &d
			break
		}
	}
	if desc == nil {
		return newErr(KindPropertyDoesNotExist, "no such property")
	}
	if desc.Kind != value.Kind {
		return newErr(KindPropertyTypeError, "value kind does not match declared property kind")
	}
	switch desc.Kind {
	case KindPropInt:
		v := float64(value.IntVal)
		if v < desc.Min || v > desc.Max {
			return newErr(KindRangeError, "integer property out of range")
		}
	case KindPropDouble:
		if value.DoubleVal < desc.Min || value.DoubleVal > desc.Max {
			return newErr(KindRangeError, "double property out of range")
		}
	case KindPropObject:
		obj, ok := tables.Lookup(value.ObjectVal)
		if !ok {
			return newErr(KindInvalidHandle, "object property references unknown handle")
		}
		if obj.handleKind() != desc.Capability {
			return newErr(KindHandleTypeError, "object property does not satisfy required capability")
		}
	}
	return nil
}

// propertyWrite is one pending (weak-target, property-id, value)
// record queued on the property ring.
type propertyWrite struct {
	target weakHost
	id     int
	value  PropertyValue
}

// weakHost is a non-owning reference to a PropertyHost: Context holds
// weak references to its registered Sources/Effects (§3 invariant 1),
// so a property write submitted against an object that has since been
// freed is silently dropped rather than resurrecting it. alive is
// owned and cleared by the referent itself when it is torn down.
type weakHost struct {
	host  PropertyHost
	alive *aliveFlag
}

func (w weakHost) upgrade() (PropertyHost, bool) {
	if w.alive == nil || !w.alive.Load() {
		return nil, false
	}
	return w.host, true
}

// aliveFlag is a tiny atomic liveness cell shared between an object and
// every weak reference to it; this is the concrete Go rendering of
// "weak reference" used throughout the engine (Context's Source/Effect
// lists, Source's generator list, router edge endpoints).
type aliveFlag struct {
	mu    sync.Mutex
	alive bool
}

func newAliveFlag() *aliveFlag { return &aliveFlag{alive: true} }

// weakReferenceable is satisfied by handle-table objects that carry
// their own canonical alive flag rather than one minted by a Context
// iteration list (Source and Effect get theirs from Context's
// sources/globalEffects slots instead). Generators and Buffers aren't
// iterated by Context, so anything holding a weak reference to one
// (a Source's generator list, a pending property write) upgrades
// against this same flag.
type weakReferenceable interface {
	weakAlive() *aliveFlag
}

func (f *aliveFlag) Load() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *aliveFlag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

// propertyRing is the lock-free ring of pending property writes
// (component D). External threads validate synchronously, then push;
// the audio thread drains it at the top of every block (§4.D write
// path) before running any commands.
type propertyRing struct {
	r *ring.Ring[propertyWrite]
}

func newPropertyRing() *propertyRing {
	return &propertyRing{r: ring.New[propertyWrite](propertyRingCapacity)}
}

// push validates nothing itself — callers must call validateProperty
// first (§4.D: "validates synchronously... before crossing the
// boundary") — it only publishes an already-accepted write.
func (p *propertyRing) push(w propertyWrite) error {
	if !p.r.Push(w) {
		return newErr(KindResourceExhausted, "property ring full")
	}
	return nil
}

// drain applies every pending write in FIFO order against its live
// target, skipping writes whose target has been freed since
// submission.
func (p *propertyRing) drain(limit int) int {
	return p.r.Drain(limit, func(w propertyWrite) {
		host, ok := w.target.upgrade()
		if !ok {
			return
		}
		_ = host.SetProperty(w.id, w.value)
	})
}
