/*
Package registry is the message type registry of the agent. Every message
type the agent understands has a Descriptor which tells how to build the typed
message and which handler processes it. The registry is built at startup and
it's read-only after that.

Protocol family of the type is the type URI before the final path segment,
e.g. the family of .../connections/1.0/request is .../connections/1.0.
*/
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/golang/glog"
)

// Descriptor binds the message type to its constructor and handler.
type Descriptor struct {
	Type      string
	New       func() didcomm.Message
	Handler   comm.HandlerFunc
	AdminOnly bool
}

func (d Descriptor) check() error {
	if d.Type == "" || d.New == nil || d.Handler == nil {
		return fmt.Errorf("descriptor %q is incomplete", d.Type)
	}
	if didcomm.Family(d.Type) == "" {
		return fmt.Errorf("descriptor type %q has no family", d.Type)
	}
	return nil
}

type Registry struct {
	l        sync.RWMutex
	types    map[string]Descriptor
	families map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		types:    make(map[string]Descriptor),
		families: make(map[string]map[string]struct{}),
	}
}

// Register adds the descriptor. Already registered type returns
// DuplicateTypeError and the previous descriptor stays.
func (r *Registry) Register(d Descriptor) error {
	return r.RegisterMany(d)
}

// RegisterMany adds all of the descriptors or none of them.
func (r *Registry) RegisterMany(ds ...Descriptor) error {
	r.l.Lock()
	defer r.l.Unlock()

	batch := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		if err := d.check(); err != nil {
			return err
		}
		if _, ok := r.types[d.Type]; ok {
			return &fault.DuplicateTypeError{Type: d.Type}
		}
		if _, ok := batch[d.Type]; ok {
			return &fault.DuplicateTypeError{Type: d.Type}
		}
		batch[d.Type] = struct{}{}
	}
	for _, d := range ds {
		r.types[d.Type] = d
		fam := didcomm.Family(d.Type)
		members, ok := r.families[fam]
		if !ok {
			members = make(map[string]struct{})
			r.families[fam] = members
		}
		members[d.Type] = struct{}{}
		glog.V(3).Infoln("registered", d.Type, "admin:", d.AdminOnly)
	}
	return nil
}

// Resolve returns the descriptor of the type.
func (r *Registry) Resolve(t string) (Descriptor, bool) {
	r.l.RLock()
	defer r.l.RUnlock()
	d, ok := r.types[t]
	return d, ok
}

// FindProtocol returns the sorted message types of the family.
func (r *Registry) FindProtocol(family string) []string {
	r.l.RLock()
	defer r.l.RUnlock()

	members := r.families[family]
	types := make([]string, 0, len(members))
	for t := range members {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Families returns the sorted protocol families.
func (r *Registry) Families() []string {
	r.l.RLock()
	defer r.l.RUnlock()

	fams := make([]string, 0, len(r.families))
	for f := range r.families {
		fams = append(fams, f)
	}
	sort.Strings(fams)
	return fams
}

// Public tells if the family has types which can be received from the
// network.
func (r *Registry) Public(family string) bool {
	r.l.RLock()
	defer r.l.RUnlock()

	for t := range r.families[family] {
		if !r.types[t].AdminOnly {
			return true
		}
	}
	return false
}

// Len returns the number of the registered types.
func (r *Registry) Len() int {
	r.l.RLock()
	defer r.l.RUnlock()
	return len(r.types)
}

// Versions returns the registered versions of the protocol, e.g. connections.
func (r *Registry) Versions(name string) []*semver.Version {
	vers := make([]*semver.Version, 0, 1)
	for _, fam := range r.Families() {
		mt, err := didcomm.ParseType(fam + "/x")
		if err != nil || mt.Name != name {
			continue
		}
		v, err := semver.NewVersion(mt.Version)
		if err != nil {
			glog.Warningln("protocol", fam, "version:", err)
			continue
		}
		vers = append(vers, v)
	}
	sort.Sort(semver.Collection(vers))
	return vers
}

// Supports tells if some registered version of the protocol satisfies the
// constraint, e.g. "~1.0" or ">= 1.0, < 2".
func (r *Registry) Supports(name, constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	for _, v := range r.Versions(name) {
		if c.Check(v) {
			return true, nil
		}
	}
	return false, nil
}
