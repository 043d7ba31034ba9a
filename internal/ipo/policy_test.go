package ipo

import (
	"context"
	"reflect"
	"testing"
)

func validInput() PolicyInput {
	return PolicyInput{
		Lots:      2,
		Quantity:  200,
		Amount:    50000,
		Rate:      250,
		Cutoff:    true,
		MinPrice:  240,
		MaxPrice:  250,
		Category:  "RETAIL",
		FormType:  "UPI",
		BOID:      "1208160000000001",
		DPID:      "IN300000",
		UPIID:     "asha@upi",
		RetailCap: DefaultRetailCap,
	}
}

func TestPolicy_Deny(t *testing.T) {
	p, err := NewPolicy(context.Background())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	tests := []struct {
		name   string
		modify func(*PolicyInput)
		want   []string
	}{
		{"valid", func(*PolicyInput) {}, []string{}},
		{"zero lots", func(in *PolicyInput) { in.Lots = 0 }, []string{"apply for at least one lot"}},
		{"above retail cap", func(in *PolicyInput) { in.Amount = 200001 }, []string{"amount exceeds the retail investment limit"}},
		{"missing boid and dpid", func(in *PolicyInput) { in.BOID, in.DPID = "", "" }, []string{"BOID and DP id are required"}},
		{"upi without id", func(in *PolicyInput) { in.UPIID = "" }, []string{"UPI id is required for UPI applications"}},
		{"asba without upi id", func(in *PolicyInput) { in.FormType, in.UPIID = "ASBA", "" }, []string{}},
		{"bid below band", func(in *PolicyInput) { in.Cutoff, in.Rate = false, 239 }, []string{"bid price is outside the price band"}},
		{"bid inside band", func(in *PolicyInput) { in.Cutoff, in.Rate = false, 245 }, []string{}},
		{"cutoff for non retail", func(in *PolicyInput) { in.Category = "HNI" }, []string{"cut-off bids are only available to retail investors"}},
		{"several violations", func(in *PolicyInput) { in.Lots = 0; in.BOID = "" }, []string{"BOID and DP id are required", "apply for at least one lot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)
			got, err := p.Deny(context.Background(), in)
			if err != nil {
				t.Fatalf("Deny: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Deny = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicy_CustomModule(t *testing.T) {
	strict := `package brokerage.ipo

deny contains "applications are closed" if { true }
`
	p, err := NewPolicy(context.Background(), strict)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	got, err := p.Deny(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "applications are closed" {
		t.Errorf("Deny = %q", got)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestNewPolicy_CompileError(t *testing.T) {
	if _, err := NewPolicy(context.Background(), "package brokerage.ipo\n\ndeny contains if {"); err == nil {
		t.Error("invalid module should fail to compile")
	}
}
