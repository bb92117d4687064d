package solo

// Category identifies which of the two singleton flavours a type belongs to.
// Every registered type carries exactly one Category.
type Category int

const (
	// DataAsset singletons are pure data owned by the content store.
	// They are never created on demand; a main instance must be elected.
	DataAsset Category = iota

	// LiveObject singletons are components attached to a scene node.
	// A missing instance is created lazily from the main template, or from
	// scratch when no template was elected.
	LiveObject

	// categoryCount is the total number of categories.
	categoryCount
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case DataAsset:
		return "asset"
	case LiveObject:
		return "live"
	default:
		return "unknown"
	}
}

// ParseCategory parses the value produced by String.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "asset":
		return DataAsset, true
	case "live":
		return LiveObject, true
	default:
		return categoryCount, false
	}
}

// Phase selects the backing store used by the runtime resolver.
type Phase int

const (
	// Authoring reads mains from the mutable AuthoringStore.
	Authoring Phase = iota

	// Packaged reads templates from an immutable BakedTable and lets data
	// assets self-register while shipped content is loaded.
	Packaged
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case Authoring:
		return "authoring"
	case Packaged:
		return "packaged"
	default:
		return "unknown"
	}
}

// ParsePhase parses the value produced by String.
func ParsePhase(s string) (Phase, bool) {
	switch s {
	case "authoring", "":
		return Authoring, true
	case "packaged":
		return Packaged, true
	default:
		return Authoring, false
	}
}
