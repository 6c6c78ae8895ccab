// Package transport implements the cluster-aware request pipeline shared by
// the Elastic product clients: a coordinator that drives one logical request
// through a pool of candidate nodes, applies pinging, sniffing, retry and
// failover policies, classifies responses, and returns a typed response with
// an audit trail.
//
// The package consumes three external capabilities rather than implementing
// them: an Invoker performs the actual HTTP turnaround, a Serializer (folded
// into ResponseBuilder for generic bodies) marshals/unmarshals wire bodies,
// and a ProductRegistration supplies product-specific policy such as sniff/
// ping endpoint construction and status-code classification. None of those
// are implemented here; see transport/vcluster for a deterministic stand-in
// used by this package's own tests.
package transport
