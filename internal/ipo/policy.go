package ipo

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.brokerage.ipo.deny"

// DefaultPolicy is the application eligibility policy. Each deny message is shown to the user.
const DefaultPolicy = `package brokerage.ipo

retail_categories := {"RETAIL", "IND", "INDIVIDUAL", "RII"}

deny contains "apply for at least one lot" if {
	input.lots <= 0
}

deny contains "amount exceeds the retail investment limit" if {
	retail_categories[upper(input.category)]
	input.retail_cap > 0
	input.amount > input.retail_cap
}

deny contains "BOID and DP id are required" if {
	input.boid == ""
}

deny contains "BOID and DP id are required" if {
	input.dpid == ""
}

deny contains "UPI id is required for UPI applications" if {
	upper(input.formtype) == "UPI"
	input.upiid == ""
}

deny contains "bid price is outside the price band" if {
	not input.cutoff
	input.max_price > 0
	input.rate < input.min_price
}

deny contains "bid price is outside the price band" if {
	not input.cutoff
	input.max_price > 0
	input.rate > input.max_price
}

deny contains "cut-off bids are only available to retail investors" if {
	input.cutoff
	not retail_categories[upper(input.category)]
}
`

// PolicyInput is the document an application is evaluated against.
type PolicyInput struct {
	Lots      int     `json:"lots"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Cutoff    bool    `json:"cutoff"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
	Category  string  `json:"category"`
	FormType  string  `json:"formtype"`
	BOID      string  `json:"boid"`
	DPID      string  `json:"dpid"`
	UPIID     string  `json:"upiid"`
	RetailCap float64 `json:"retail_cap"`
}

// Policy evaluates IPO applications with OPA Rego.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles modules, or DefaultPolicy when none are given. Every module must belong to
// package brokerage.ipo and contribute to the deny set.
func NewPolicy(ctx context.Context, modules ...string) (*Policy, error) {
	if len(modules) == 0 {
		modules = []string{DefaultPolicy}
	}
	files := make(map[string]string, len(modules))
	for i, m := range modules {
		files[fmt.Sprintf("ipo_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(files)
	if err != nil {
		return nil, fmt.Errorf("compile ipo policy: %w", err)
	}
	q, err := rego.New(rego.Query(policyQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare ipo policy: %w", err)
	}
	return &Policy{query: q}, nil
}

// Deny returns the sorted deny messages for in; empty means the application is allowed.
func (p *Policy) Deny(ctx context.Context, in PolicyInput) ([]string, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("eval ipo policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return []string{}, nil
	}
	set, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("eval ipo policy: unexpected result %T", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(set))
	for _, v := range set {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HealthCheck evaluates the policy against a valid application.
func (p *Policy) HealthCheck(ctx context.Context) error {
	_, err := p.Deny(ctx, PolicyInput{Lots: 1, Quantity: 1, Amount: 1, Rate: 1, Category: "RETAIL", BOID: "x", DPID: "x"})
	return err
}
