package transport_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/elastic/elastic-transport-go/transport"
	"github.com/elastic/elastic-transport-go/transport/pool"
	"github.com/elastic/elastic-transport-go/transport/vcluster"
)

var start = time.Unix(1_700_000_000, 0)

var _ = Describe("RequestPipeline against a virtual cluster", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("sniffs on startup before serving the first request", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200"}, start)
		product := vcluster.NewProduct(cluster)
		p := pool.NewSniffing(cluster.SeedNodes(false), cluster.Clock())
		seedKey := p.Nodes()[0].NormalizedKey()

		tr := transport.NewTransport(transport.TransportConfig{
			Global:  transport.GlobalConfiguration{SniffsOnStartup: true},
			Pool:    p,
			Product: product,
			Invoker: cluster,
			Clock:   cluster.Clock(),
		})

		built, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(built.StringBody).NotTo(BeEmpty())

		Expect(p.SniffedOnStartup()).To(BeTrue())
		stats := cluster.Stats(seedKey)
		Expect(stats.Sniffed).To(Equal(1))
		Expect(stats.Called).To(Equal(1))
	})

	It("fails over to the next node after a bad response and still succeeds", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200", "127.0.0.1:9201"}, start)
		product := vcluster.NewProduct(cluster)
		nodes := cluster.SeedNodes(false)
		n1, n2 := nodes[0], nodes[1]
		cluster.Rules().Add(vcluster.KindCall, &vcluster.Rule{OnPort: 9200, Status: 502})

		p := pool.NewStatic(nodes, cluster.Clock())
		tr := transport.NewTransport(transport.TransportConfig{
			Pool: p, Product: product, Invoker: cluster, Clock: cluster.Clock(),
		})

		built, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(built.StringBody).NotTo(BeEmpty())

		Expect(cluster.Stats(n1.NormalizedKey()).Failures).To(Equal(1))
		Expect(cluster.Stats(n2.NormalizedKey()).Successes).To(Equal(1))
		Expect(n1.IsAlive()).To(BeFalse())
	})

	It("surfaces MaxTimeoutReached when a node takes longer than the retry budget", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200"}, start)
		product := vcluster.NewProduct(cluster)
		nodes := cluster.SeedNodes(false)
		cluster.Rules().Add(vcluster.KindCall, &vcluster.Rule{OnPort: 9200, Succeeds: true, Takes: 5 * time.Second})

		p := pool.NewSingleNode(nodes[0])
		tr := transport.NewTransport(transport.TransportConfig{
			Global:  transport.GlobalConfiguration{RequestTimeout: time.Second, ThrowExceptions: true},
			Pool:    p, Product: product, Invoker: cluster, Clock: cluster.Clock(),
		})

		_, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
		Expect(err).To(HaveOccurred())

		var te *transport.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.Reason).To(Equal(transport.ReasonMaxTimeoutReached))
	})

	It("short-circuits on a 401 without attempting further nodes", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200", "127.0.0.1:9201"}, start)
		product := vcluster.NewProduct(cluster)
		nodes := cluster.SeedNodes(false)
		n1, n2 := nodes[0], nodes[1]
		cluster.Rules().Add(vcluster.KindCall, &vcluster.Rule{OnPort: 9200, Status: 401})

		p := pool.NewStatic(nodes, cluster.Clock())
		tr := transport.NewTransport(transport.TransportConfig{
			Global:  transport.GlobalConfiguration{ThrowExceptions: true},
			Pool:    p, Product: product, Invoker: cluster, Clock: cluster.Clock(),
		})

		_, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
		Expect(err).To(HaveOccurred())

		var te *transport.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.Reason).To(Equal(transport.ReasonBadAuthentication))
		Expect(cluster.Stats(n1.NormalizedKey()).Called).To(Equal(1))
		Expect(cluster.Stats(n2.NormalizedKey()).Called).To(Equal(0))
	})

	It("stays on the first live node across repeated requests with a sticky pool", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200", "127.0.0.1:9201"}, start)
		product := vcluster.NewProduct(cluster)
		nodes := cluster.SeedNodes(false)
		n1, n2 := nodes[0], nodes[1]

		p := pool.NewSticky(nodes, nil, cluster.Clock())
		tr := transport.NewTransport(transport.TransportConfig{
			Pool: p, Product: product, Invoker: cluster, Clock: cluster.Clock(),
		})

		for i := 0; i < 3; i++ {
			_, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(cluster.Stats(n1.NormalizedKey()).Called).To(Equal(3))
		Expect(cluster.Stats(n2.NormalizedKey()).Called).To(Equal(0))
	})

	It("reshapes the pool via sniff-on-connection-fault after a connect error", func() {
		cluster := vcluster.NewVirtualCluster([]string{"127.0.0.1:9200", "127.0.0.1:9201"}, start)
		product := vcluster.NewProduct(cluster)
		nodes := cluster.SeedNodes(false)
		n1 := nodes[0]
		cluster.Rules().Add(vcluster.KindCall, &vcluster.Rule{
			OnPort: 9200,
			Times:  vcluster.Times(1),
			Raises: transport.NewConnectError(errors.New("connection refused")),
		})
		cluster.Reshape([]string{"127.0.0.1:9300", "127.0.0.1:9301"})

		p := pool.NewSniffing(nodes, cluster.Clock())
		tr := transport.NewTransport(transport.TransportConfig{
			Global:  transport.GlobalConfiguration{SniffsOnConnectionFault: true},
			Pool:    p, Product: product, Invoker: cluster, Clock: cluster.Clock(),
		})

		built, err := tr.RequestString(ctx, "GET", "/_cluster/info", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(built.StringBody).NotTo(BeEmpty())

		reseeded := p.Nodes()
		Expect(reseeded).To(HaveLen(2))
		for _, n := range reseeded {
			port := n.URI().Port()
			Expect(port).To(BeElementOf("9300", "9301"))
		}
		Expect(cluster.Stats(n1.NormalizedKey()).Failures).To(Equal(1))
	})
})
