// Package main is a tiny smoke-test client for the transport core. It wires
// a Transport against a deterministic VirtualCluster rather than a real
// Elasticsearch endpoint, so it can be run anywhere without network access
// to sanity-check pool construction, sniffing, and response shaping.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elastic/elastic-transport-go/transport"
	"github.com/elastic/elastic-transport-go/transport/pool"
	"github.com/elastic/elastic-transport-go/transport/vcluster"
)

var (
	addrs      = flag.String("addrs", "127.0.0.1:9200", "comma-separated host:port list seeding the virtual cluster")
	method     = flag.String("method", "GET", "HTTP method to issue")
	path       = flag.String("path", "/_cluster/info", "path and query to request")
	sniffy     = flag.Bool("sniff-on-startup", false, "enable sniff-on-startup before the first request")
	compressed = flag.Bool("compress", false, "negotiate gzip content-encoding on the outgoing body")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	hosts := strings.Split(*addrs, ",")
	cluster := vcluster.NewVirtualCluster(hosts, time.Unix(1_700_000_000, 0))
	defer cluster.Close()

	nodes := cluster.SeedNodes(false)
	p := pool.NewSniffing(nodes, cluster.Clock())

	t := transport.NewTransport(transport.TransportConfig{
		Global: transport.GlobalConfiguration{
			RequestTimeout:  10 * time.Second,
			SniffsOnStartup: *sniffy,
			HTTPCompression: *compressed,
		},
		Pool:    p,
		Product: vcluster.NewProduct(cluster),
		Invoker: cluster,
		Clock:   cluster.Clock(),
	})

	built, err := t.RequestString(context.Background(), *method, *path, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "escheck: request failed: %v\n", err)
		return 1
	}

	fmt.Printf("status=%d uri=%s\n", built.Details.HTTPStatusCode, built.Details.URI)
	fmt.Println(built.StringBody)
	return 0
}
