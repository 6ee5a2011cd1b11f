// Package plugin implements the SPA-style plug-in factory entrypoint of
// spec.md §6: a Factory exposes one or more named interfaces behind a
// Handle, decoupling "construct a convnode.Node" from "know how to wire
// it to a host's type-ID registry and logger". Grounded on the
// teacher's sources/factory.go registry pattern
// (internal/audiocore/sources/factory.go), generalized from "construct
// an AudioSource by config" to "construct a plug-in Handle by support
// object".
package plugin

import (
	"log/slog"

	"github.com/audiograph/convnode/convnode"
	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/internal/logging"
	"github.com/audiograph/convnode/internal/metrics"
	"github.com/audiograph/convnode/kernel"
	"github.com/audiograph/convnode/typeid"
)

// InterfaceID names an interface a Handle can expose through
// GetInterface. This module advertises exactly one.
type InterfaceID uint32

const (
	// InterfaceNode resolves to a *convnode.Node.
	InterfaceNode InterfaceID = iota + 1
)

// Support is the host-supplied collaborator bundle a Factory needs to
// build a Handle: a type-ID map (mandatory, spec.md §6) and an optional
// logger/metrics recorder.
type Support struct {
	TypeMap  typeid.Map
	Logger   *slog.Logger
	Recorder metrics.Recorder

	Remixer   kernel.Remixer
	Resampler kernel.Resampler
}

// Handle is a constructed plug-in instance. GetInterface is the only
// way to reach the concrete object behind it, matching the original's
// "interfaces behind an opaque handle" ABI shape.
type Handle interface {
	GetInterface(id InterfaceID) (any, error)
}

// Factory describes one plug-in type a host can instantiate.
type Factory struct {
	Version    int
	Name       string
	Properties map[string]string
	NewHandle  func(support Support) (Handle, error)
}

// NodeFactory is the one factory this module registers: it builds a
// convnode.Node behind a Handle whose only interface is InterfaceNode.
var NodeFactory = Factory{
	Version:    1,
	Name:       "audioconvert",
	Properties: map[string]string{"media.class": "Audio/Convert"},
	NewHandle:  newNodeHandle,
}

type nodeHandle struct {
	node *convnode.Node
}

func newNodeHandle(support Support) (Handle, error) {
	if support.TypeMap == nil {
		return nil, errors.New(nil).
			Component("plugin").
			Category(errors.CategoryValidation).
			Context("reason", "Support.TypeMap is required").
			Build()
	}
	logger := support.Logger
	if logger == nil {
		logger = logging.ForService("plugin")
	}

	support.TypeMap.Register(typeid.SymbolMediaTypeAudio)
	support.TypeMap.Register(typeid.SymbolParamFormat)
	support.TypeMap.Register(typeid.SymbolCommandStart)
	support.TypeMap.Register(typeid.SymbolCommandPause)

	node := convnode.New(convnode.Options{
		Remixer:   support.Remixer,
		Resampler: support.Resampler,
		Recorder:  support.Recorder,
		Logger:    logger,
	})
	return &nodeHandle{node: node}, nil
}

// GetInterface implements Handle.
func (h *nodeHandle) GetInterface(id InterfaceID) (any, error) {
	switch id {
	case InterfaceNode:
		return h.node, nil
	default:
		return nil, errors.Newf("unknown interface id %d", id).
			Component("plugin").
			Category(errors.CategoryNotFound).
			Context("interface_id", uint32(id)).
			Build()
	}
}
