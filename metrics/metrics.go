// Package metrics records dispatcher activity. Names passed to a Recorder are
// short identifiers such as "rpc_requests_total"; labels carry the network
// and, where meaningful, the JSON-RPC method.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
