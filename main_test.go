package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/pricing"
)

func TestEstimateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"estimate", "--width", "120", "--height", "150", "--qty", "2",
		"--profile", "aluminium", "--glass", "double"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("estimate: %v", err)
	}

	var b pricing.Breakdown
	if err := json.Unmarshal(out.Bytes(), &b); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	// 120 x 150 cm: 5.4 m perimeter, 1.8 m² of glass.
	if b.Perimeter != 5.4 || b.ProfileLength != 6.48 || b.GlassArea != 1.8 {
		t.Errorf("Unexpected geometry %+v", b)
	}
	if b.ProfileCost != 7776 || b.GlassCost != 5040 || b.UnitPrice != 17816 || b.TotalPrice != 35632 {
		t.Errorf("Unexpected prices %+v", b)
	}
}
