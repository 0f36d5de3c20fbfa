package pathway

import (
	"math"
	"testing"
)

func TestGlycolysisDerivativesFiniteAtReferenceState(t *testing.T) {
	m := Glycolysis{}
	dst := make([]float64, glySpeciesCount)
	m.Derivatives(dst, m.InitialState(), m.Defaults(), 0)
	for i, d := range dst {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			t.Fatalf("non-finite derivative for %s: %v", glycolysisSpecies[i], d)
		}
	}
	if dst[glySpGlucose] >= 0 {
		t.Fatalf("expected hexokinase to consume glucose, got d(glucose)=%v", dst[glySpGlucose])
	}
}

func TestGlycolysisNoFluxFromEmptyPools(t *testing.T) {
	m := Glycolysis{}
	dst := make([]float64, glySpeciesCount)
	m.Derivatives(dst, make([]float64, glySpeciesCount), m.Defaults(), 0)
	for i, d := range dst {
		if d != 0 {
			t.Fatalf("expected zero flux with empty pools, %s moves at %v", glycolysisSpecies[i], d)
		}
	}
}

func TestGlycolysisVmaxScalesForwardFlux(t *testing.T) {
	m := Glycolysis{}
	params := m.Defaults()
	base := make([]float64, glySpeciesCount)
	m.Derivatives(base, m.InitialState(), params, 0)

	params[glyHXKVmax] *= 2
	doubled := make([]float64, glySpeciesCount)
	m.Derivatives(doubled, m.InitialState(), params, 0)

	if !within(doubled[glySpGlucose], 2*base[glySpGlucose], 1e-9*math.Abs(base[glySpGlucose])) {
		t.Fatalf("glucose drain should scale with HXK_Vmax: base=%v doubled=%v",
			base[glySpGlucose], doubled[glySpGlucose])
	}
}

func TestGlycolysisG6PInhibitsHexokinase(t *testing.T) {
	m := Glycolysis{}
	params := m.Defaults()

	low := m.InitialState()
	low[glySpG6P] = 0.1
	dstLow := make([]float64, glySpeciesCount)
	m.Derivatives(dstLow, low, params, 0)

	high := m.InitialState()
	high[glySpG6P] = 10.0
	dstHigh := make([]float64, glySpeciesCount)
	m.Derivatives(dstHigh, high, params, 0)

	// More product, slower glucose drain.
	if math.Abs(dstHigh[glySpGlucose]) >= math.Abs(dstLow[glySpGlucose]) {
		t.Fatalf("expected G6P to inhibit HXK: low=%v high=%v",
			dstLow[glySpGlucose], dstHigh[glySpGlucose])
	}
}

func TestGlycolysisInternalStepsBalance(t *testing.T) {
	m := Glycolysis{}
	dst := make([]float64, glySpeciesCount)
	m.Derivatives(dst, m.InitialState(), m.Defaults(), 0)

	// Recover each reaction rate from the chain wiring. If any
	// derivative is routed to the wrong species the recovered drain
	// at the end of the chain goes nonsensical.
	vHXK := -dst[glySpGlucose]
	if vHXK <= 0 {
		t.Fatalf("expected positive HXK flux, got %v", vHXK)
	}
	vPGI := vHXK - dst[glySpG6P]
	vPFK := vPGI - dst[glySpF6P]
	vALD := vPFK - dst[glySpF16BP]
	vTPI := vALD - dst[glySpDHAP]
	vGAPDH := vALD + vTPI - dst[glySpGAP]
	vPGK := vGAPDH - dst[glySpBPG]
	vGPM := vPGK - dst[glySp3PG]
	vENO := vGPM - dst[glySp2PG]
	vPYK := vENO - dst[glySpPEP]
	vPDC := vPYK - dst[glySpPyruvate]
	if math.IsNaN(vPDC) || math.IsInf(vPDC, 0) {
		t.Fatalf("flux chain does not close: vPDC=%v", vPDC)
	}
	if vPDC <= 0 {
		t.Fatalf("expected positive decarboxylase drain at reference state, got %v", vPDC)
	}
}
