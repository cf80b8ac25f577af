// Package synthetic generates plausible predictions for demos and load tests.
package synthetic

import (
	"math/rand"
	"sync"

	"github.com/softcane/kube-remediator/internal/remediation"
)

// Config configures the generator.
type Config struct {
	// Seed makes output reproducible. Zero picks a fixed default.
	Seed int64

	// Namespace is used for every target. Defaults to "default".
	Namespace string

	// IssueTypes restricts which kinds are generated. Empty means all four.
	IssueTypes []remediation.IssueType
}

// Generator produces random predictions. It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	namespace string
	kinds     []remediation.IssueType
}

// New creates a generator.
func New(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = 42
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	kinds := cfg.IssueTypes
	if len(kinds) == 0 {
		kinds = remediation.IssueTypes
	}
	return &Generator{
		rng:       rand.New(rand.NewSource(seed)),
		namespace: ns,
		kinds:     append([]remediation.IssueType(nil), kinds...),
	}
}

// Next returns a prediction of a randomly chosen kind.
func (g *Generator) Next() remediation.Prediction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(g.kinds[g.rng.Intn(len(g.kinds))])
}

// Generate returns a prediction of the given kind.
func (g *Generator) Generate(kind remediation.IssueType) remediation.Prediction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(kind)
}

func (g *Generator) generate(kind remediation.IssueType) remediation.Prediction {
	p := remediation.Prediction{
		IssueType:  kind,
		Confidence: g.uniform(0.8, 0.99),
		Target:     remediation.Target{Namespace: g.namespace},
	}

	switch kind {
	case remediation.IssueResourceExhaustion:
		replicas := int32(2)
		usage := g.uniform(1.3, 2.0)
		p.Target.Deployment = "web-app"
		p.Target.Replicas = &replicas
		p.Details = &remediation.Details{UsageIncrease: &usage}
	case remediation.IssueNodeFailure:
		pods := []string{"web-app-1", "web-app-2"}
		p.Target.Pod = pods[g.rng.Intn(len(pods))]
	case remediation.IssueResourceBottleneck:
		cpu := g.uniform(1.1, 1.5)
		memory := g.uniform(1.1, 1.5)
		p.Target.Deployment = "resource-heavy"
		p.Target.CurrentCPU = "500m"
		p.Target.CurrentMemory = "512Mi"
		p.Details = &remediation.Details{CPUAdjustment: &cpu, MemoryAdjustment: &memory}
	case remediation.IssuePerformanceDegradation:
		nodes := []string{"node-1", "node-2", "node-3"}
		p.Target.Deployment = "web-app"
		p.Target.Node = nodes[g.rng.Intn(len(nodes))]
	}
	return p
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
