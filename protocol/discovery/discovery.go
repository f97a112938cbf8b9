// Package discovery implements the discover-features/1.0 protocol. The query
// is a glob over the protocol family URIs and the disclose lists the matching
// families which we accept from the network.
package discovery

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// RecordType is the record type of the disclose notifications.
const RecordType = "discover_features"

type Query struct {
	didcomm.Header
	Query   string `json:"query"`
	Comment string `json:"comment,omitempty"`
}

func (q *Query) Validate() error {
	return (&didcomm.Check{}).Required("query", q.Query).Err()
}

type Protocol struct {
	PID   string   `json:"pid"`
	Roles []string `json:"roles,omitempty"`
}

type Disclose struct {
	didcomm.Header
	Protocols []Protocol `json:"protocols"`
}

func (d *Disclose) Validate() error {
	return (&didcomm.Check{}).That(d.Thread != nil && d.Thread.ID != "",
		"~thread is required").Err()
}

type Discoverer struct {
	Registry *registry.Registry
	Sender   comm.Sender
	Station  *bus.Station

	// Disclosed gets the peers' answers to our queries.
	Disclosed func(connID string, d *Disclose)
}

// Register adds the discover-features messages to the registry.
func Register(reg *registry.Registry, d *Discoverer) error {
	if d.Registry == nil {
		d.Registry = reg
	}
	return reg.RegisterMany(
		registry.Descriptor{
			Type:    pltype.DiscoverFeaturesQuery,
			New:     func() didcomm.Message { return &Query{} },
			Handler: d.handleQuery,
		},
		registry.Descriptor{
			Type:    pltype.DiscoverFeaturesDisclose,
			New:     func() didcomm.Message { return &Disclose{} },
			Handler: d.handleDisclose,
		},
	)
}

// Query sends the query over the connection and returns its thread ID.
func (d *Discoverer) Query(ctx context.Context, connID, query string) (thid string, err error) {
	defer err2.Handle(&err, "discover features")

	q := &Query{Header: didcomm.NewHeader(pltype.DiscoverFeaturesQuery), Query: query}
	try.To(q.Validate())
	try.To(d.Sender.Send(ctx, q, connID))
	return q.ThreadID(), nil
}

// Match returns the public protocol families which match the glob. The '*'
// matches any characters. Families of the same protocol are ordered by the
// version, newest first.
func (d *Discoverer) Match(query string) ([]Protocol, error) {
	re, err := globRegexp(didcomm.Normalize(query))
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidRequest, "invalid query", err)
	}
	type fam struct {
		uri, name string
		ver       *semver.Version
	}
	fams := make([]fam, 0, 8)
	for _, f := range d.Registry.Families() {
		if !re.MatchString(f) || !d.Registry.Public(f) {
			continue
		}
		mt, err := didcomm.ParseType(f + "/x")
		if err != nil {
			continue
		}
		v, err := semver.NewVersion(mt.Version)
		if err != nil {
			glog.Warningln("family", f, "version:", err)
			continue
		}
		fams = append(fams, fam{uri: f, name: mt.Prefix + "/" + mt.Name, ver: v})
	}
	sort.SliceStable(fams, func(i, j int) bool {
		if fams[i].name != fams[j].name {
			return fams[i].name < fams[j].name
		}
		return fams[i].ver.GreaterThan(fams[j].ver)
	})
	protocols := make([]Protocol, 0, len(fams))
	for _, f := range fams {
		protocols = append(protocols, Protocol{PID: f.uri})
	}
	return protocols, nil
}

func globRegexp(glob string) (*regexp.Regexp, error) {
	parts := strings.Split(glob, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

func (d *Discoverer) handleQuery(ctx context.Context, rc *comm.RequestContext) error {
	q := rc.Message.(*Query)
	protocols, err := d.Match(q.Query)
	if err != nil {
		return err
	}
	glog.V(1).Infof("query %q matched %d protocols", q.Query, len(protocols))
	return rc.Responder.SendReply(ctx, &Disclose{
		Header:    didcomm.NewReplyHeader(pltype.DiscoverFeaturesDisclose, &q.Header),
		Protocols: protocols,
	})
}

func (d *Discoverer) handleDisclose(_ context.Context, rc *comm.RequestContext) error {
	disclose := rc.Message.(*Disclose)
	glog.V(1).Infoln("disclosed", len(disclose.Protocols), "protocols, thread:",
		disclose.ThreadID())
	if d.Disclosed != nil {
		d.Disclosed(rc.ConnectionID(), disclose)
	}
	if d.Station != nil {
		d.Station.Broadcast(bus.Notify{
			RecordType:   RecordType,
			ID:           disclose.ThreadID(),
			ConnectionID: rc.ConnectionID(),
			ThreadID:     disclose.ThreadID(),
			State:        "disclosed",
		})
	}
	return nil
}
