// Package vcluster implements a deterministic virtualized cluster: an
// alternate transport.Invoker driven entirely by configured rules, used to
// exercise RequestPipeline's sniff/ping/retry/failover state machine without
// any real network I/O (§4.7).
package vcluster
