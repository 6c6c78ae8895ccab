package transport_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestPipelineScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Scenarios Suite")
}
