// Package solo resolves exactly one main instance per singleton type.
//
// Two kinds of singleton types are supported:
//   - Data assets: pure data owned by the content store. One instance per
//     type is elected main; consumers look it up by type.
//   - Live objects: components attached to a scene node. The main instance
//     is a template; the live instance is copied from it on first use, or
//     created from scratch when no template was elected.
//
// While authoring, mains are tracked in an AuthoringStore. Before packaging
// a Packager bakes the live object templates into an immutable BakedTable,
// which the runtime reads once the application ships.
//
// # Quick Start
//
//	type AudioSettings struct {
//	    solo.Asset
//	    Volume float64
//	}
//
//	type AudioManager struct {
//	    solo.Behaviour
//	    Channels int
//	}
//
//	mngr, err := solo.NewBuilder().
//	    Type(solo.AssetType[AudioSettings]()).
//	    Type(solo.LiveType[AudioManager](solo.WithPersistent(true))).
//	    Init()
//
//	settings := &AudioSettings{Volume: 0.8}
//	_ = mngr.Load(settings) // first main-flagged instance becomes main
//
//	s, _ := solo.AssetOf[AudioSettings](mngr.Runtime())
//	am, _ := solo.Instance[AudioManager](mngr.Runtime())
//
// # Elections
//
// Every main flag change goes through the Elector. Promoting a candidate
// demotes the previous main; demoting the main leaves the type mainless.
// Candidates imported with their flag set only become main when the type
// has none, so the first elected main is sticky.
//
// # Packaging
//
//	p := mngr.Packager(artifacts, shipped)
//	err := p.Run(ctx, build)
//
// Run writes the baked table, forces it and the main data assets into the
// shipped set, runs build, and always restores the content afterwards.
package solo

// Version is the solo version.
const Version = "1.0.0"
