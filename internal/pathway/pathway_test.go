package pathway

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func within(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNewSpecRejectsUnknownNames(t *testing.T) {
	if _, err := NewSpec("krebs", "yeast"); err == nil {
		t.Fatalf("expected error for unknown pathway")
	}
	if _, err := NewSpec("glycolysis", "martian"); err == nil {
		t.Fatalf("expected error for unknown organism")
	}
}

func TestNewSpecDefaultsToYeast(t *testing.T) {
	spec, err := NewSpec("glycolysis", "")
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	if spec.Organism != "yeast" {
		t.Fatalf("expected empty organism to resolve to yeast, got %s", spec.Organism)
	}
	v, ok := spec.Defaults.Get("HXK_Vmax")
	if !ok || v != 226.5 {
		t.Fatalf("expected yeast HXK_Vmax=226.5, got %v ok=%v", v, ok)
	}
}

func TestNewSpecAppliesOrganismScaling(t *testing.T) {
	yeast, err := NewSpec("tca", "yeast")
	if err != nil {
		t.Fatalf("yeast spec: %v", err)
	}
	ecoli, err := NewSpec("tca", "ecoli")
	if err != nil {
		t.Fatalf("ecoli spec: %v", err)
	}
	for i, name := range yeast.Defaults.Names {
		want := yeast.Defaults.Values[i] * 0.90
		got := ecoli.Defaults.Values[i]
		if !within(got, want, 1e-12*math.Abs(want)) {
			t.Fatalf("ecoli %s: got %v want %v", name, got, want)
		}
	}
}

func TestSpecEstimatedIndicesResolve(t *testing.T) {
	for _, name := range Pathways() {
		spec, err := NewSpec(name, "yeast")
		if err != nil {
			t.Fatalf("new spec %s: %v", name, err)
		}
		idx, err := spec.EstimatedIndices()
		if err != nil {
			t.Fatalf("estimated indices %s: %v", name, err)
		}
		if len(idx) != len(spec.EstimatedNames) {
			t.Fatalf("%s: got %d indices for %d names", name, len(idx), len(spec.EstimatedNames))
		}
		truth, err := spec.EstimatedTruth()
		if err != nil {
			t.Fatalf("estimated truth %s: %v", name, err)
		}
		for i, j := range idx {
			if truth.Values[i] != spec.Defaults.Values[j] {
				t.Fatalf("%s: truth %s does not match defaults", name, truth.Names[i])
			}
		}
	}
}

func TestGlycolysisEstimatedSubsetSize(t *testing.T) {
	spec, err := NewSpec("glycolysis", "yeast")
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	if len(spec.EstimatedNames) != 22 {
		t.Fatalf("expected 22 estimated glycolysis parameters, got %d", len(spec.EstimatedNames))
	}
	if spec.Defaults.Len() != glyParamCount {
		t.Fatalf("expected %d glycolysis parameters, got %d", glyParamCount, spec.Defaults.Len())
	}
}

func TestTCAEstimatedSubsetSize(t *testing.T) {
	spec, err := NewSpec("tca", "yeast")
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	if len(spec.EstimatedNames) != 16 {
		t.Fatalf("expected 16 estimated tca parameters, got %d", len(spec.EstimatedNames))
	}
	if spec.Defaults.Len() != tcaParamCount {
		t.Fatalf("expected %d tca parameters, got %d", tcaParamCount, spec.Defaults.Len())
	}
}

func TestCatalogIndexAlignment(t *testing.T) {
	if len(glycolysisCatalog) != glyParamCount {
		t.Fatalf("glycolysis catalog has %d entries, indices expect %d", len(glycolysisCatalog), glyParamCount)
	}
	if len(tcaCatalog) != tcaParamCount {
		t.Fatalf("tca catalog has %d entries, indices expect %d", len(tcaCatalog), tcaParamCount)
	}
	if len(glycolysisSpecies) != glySpeciesCount || len(glycolysisInitial) != glySpeciesCount {
		t.Fatalf("glycolysis species tables misaligned")
	}
	if len(tcaSpecies) != tcaSpeciesCount || len(tcaInitial) != tcaSpeciesCount {
		t.Fatalf("tca species tables misaligned")
	}
	sentinels := []struct {
		got, want string
	}{
		{glycolysisCatalog[glyHXKVmax].name, "HXK_Vmax"},
		{glycolysisCatalog[glyPFKN].name, "PFK_n"},
		{glycolysisCatalog[glyPYKN].name, "PYK_n"},
		{glycolysisCatalog[glyPDCN].name, "PDC_n"},
		{tcaCatalog[tcaPYRTVmax].name, "PYR_transport_Vmax"},
		{tcaCatalog[tcaKGDHKaCa].name, "KGDH_Ka_Ca"},
		{tcaCatalog[tcaMDHKeq].name, "MDH_Keq"},
	}
	for _, s := range sentinels {
		if s.got != s.want {
			t.Fatalf("catalog index points at %s, want %s", s.got, s.want)
		}
	}
}

func TestPerturbedGuessStaysInBand(t *testing.T) {
	spec, err := NewSpec("glycolysis", "yeast")
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	truth, err := spec.EstimatedTruth()
	if err != nil {
		t.Fatalf("estimated truth: %v", err)
	}
	rng := rand.New(rand.NewSource(42))
	guess, err := PerturbedGuess(truth, 0.25, rng)
	if err != nil {
		t.Fatalf("perturbed guess: %v", err)
	}
	perturbed := false
	for i, v := range guess.Values {
		lo, hi := truth.Values[i]*0.875, truth.Values[i]*1.125
		if v < lo || v > hi {
			t.Fatalf("%s: guess %v outside [%v, %v]", guess.Names[i], v, lo, hi)
		}
		if v != truth.Values[i] {
			perturbed = true
		}
	}
	if !perturbed {
		t.Fatalf("expected at least one perturbed value")
	}

	rng2 := rand.New(rand.NewSource(42))
	again, err := PerturbedGuess(truth, 0.25, rng2)
	if err != nil {
		t.Fatalf("perturbed guess repeat: %v", err)
	}
	for i := range guess.Values {
		if guess.Values[i] != again.Values[i] {
			t.Fatalf("same seed produced different guesses at %s", guess.Names[i])
		}
	}
}

func TestPerturbedGuessRejectsWideFraction(t *testing.T) {
	spec, err := NewSpec("decay", "yeast")
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	truth, err := spec.EstimatedTruth()
	if err != nil {
		t.Fatalf("estimated truth: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := PerturbedGuess(truth, 2.0, rng); err == nil {
		t.Fatalf("expected error for fraction that can zero a parameter")
	}
}

func TestTimeGridEndpointsInclusive(t *testing.T) {
	grid := TimeGrid(0, 2, 50)
	if len(grid) != 50 {
		t.Fatalf("expected 50 points, got %d", len(grid))
	}
	if grid[0] != 0 || grid[len(grid)-1] != 2 {
		t.Fatalf("expected inclusive endpoints, got [%v, %v]", grid[0], grid[len(grid)-1])
	}
	for i := 1; i < len(grid); i++ {
		if grid[i] <= grid[i-1] {
			t.Fatalf("grid not strictly increasing at %d", i)
		}
	}
}

func TestDecayDerivative(t *testing.T) {
	m := Decay{}
	dst := make([]float64, 1)
	m.Derivatives(dst, []float64{2.0}, []float64{0.5}, 0)
	if !within(dst[0], -1.0, 1e-15) {
		t.Fatalf("expected dx=-1.0, got %v", dst[0])
	}
}

func TestCascadeDerivativeCouplesStages(t *testing.T) {
	m := Cascade{}
	dst := make([]float64, 2)
	m.Derivatives(dst, []float64{1.0, 0.5}, []float64{1.0, 0.5}, 0)
	if !within(dst[0], -1.0, 1e-15) {
		t.Fatalf("expected dx1=-1.0, got %v", dst[0])
	}
	if !within(dst[1], 1.0-0.25, 1e-15) {
		t.Fatalf("expected dx2=0.75, got %v", dst[1])
	}
}
