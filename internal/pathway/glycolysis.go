package pathway

import "math"

// Species indices for the glycolysis state vector.
const (
	glySpGlucose = iota
	glySpG6P
	glySpF6P
	glySpF16BP
	glySpDHAP
	glySpGAP
	glySpBPG
	glySp3PG
	glySp2PG
	glySpPEP
	glySpPyruvate
	glySpeciesCount
)

// Fixed cofactor and effector pool, mM. Held constant over the horizon.
const (
	glyATP = 2.5
	glyADP = 1.3
	glyAMP = 0.28
	glyNAD = 1.2
	glyPi  = 50.0
	glyT6P = 0.024
)

// Parameter indices, aligned with glycolysisCatalog.
const (
	glyHXKVmax = iota
	glyHXKKmGlucose
	glyHXKKiG6P
	glyHXKKiT6P
	glyPGIVmax
	glyPGIKmG6P
	glyPGIKmF6P
	glyPGIKeq
	glyPFKVmax
	glyPFKKmF6P
	glyPFKKmATP
	glyPFKKiATP
	glyPFKKaAMP
	glyPFKN
	glyALDVmax
	glyALDKmF16BP
	glyALDKmDHAP
	glyALDKmGAP
	glyALDKeq
	glyTPIVmax
	glyTPIKmDHAP
	glyTPIKmGAP
	glyTPIKeq
	glyGAPDHVmax
	glyGAPDHKmGAP
	glyGAPDHKmNAD
	glyGAPDHKmPi
	glyPGKVmax
	glyPGKKm13BPG
	glyPGKKmADP
	glyGPMVmax
	glyGPMKm3PG
	glyGPMKm2PG
	glyGPMKeq
	glyENOVmax
	glyENOKm2PG
	glyENOKmPEP
	glyENOKeq
	glyPYKVmax
	glyPYKKmPEP
	glyPYKKmADP
	glyPYKKaF16BP
	glyPYKN
	glyPDCVmax
	glyPDCKmPyruvate
	glyPDCN
	glyParamCount
)

// Reference constants, mM and mM/min. Magnitudes follow the baker's
// yeast literature; the PGK saturation constant is relaxed so the fast
// BPG mode stays integrable by the explicit stepper.
var glycolysisCatalog = []paramDef{
	{"HXK_Vmax", 226.5},
	{"HXK_Km_glucose", 0.1},
	{"HXK_Ki_G6P", 0.04},
	{"HXK_Ki_T6P", 0.04},
	{"PGI_Vmax", 339.7},
	{"PGI_Km_G6P", 1.4},
	{"PGI_Km_F6P", 0.3},
	{"PGI_Keq", 0.29},
	{"PFK_Vmax", 182.9},
	{"PFK_Km_F6P", 0.1},
	{"PFK_Km_ATP", 0.71},
	{"PFK_Ki_ATP", 0.65},
	{"PFK_Ka_AMP", 0.0995},
	{"PFK_n", 2.5},
	{"ALD_Vmax", 322.3},
	{"ALD_Km_F16BP", 0.3},
	{"ALD_Km_DHAP", 2.4},
	{"ALD_Km_GAP", 2.0},
	{"ALD_Keq", 0.069},
	{"TPI_Vmax", 999.3},
	{"TPI_Km_DHAP", 1.2},
	{"TPI_Km_GAP", 1.2},
	{"TPI_Keq", 0.045},
	{"GAPDH_Vmax", 1184.5},
	{"GAPDH_Km_GAP", 0.39},
	{"GAPDH_Km_NAD", 2.84},
	{"GAPDH_Km_Pi", 3.9},
	{"PGK_Vmax", 1306.4},
	{"PGK_Km_13BPG", 0.05},
	{"PGK_Km_ADP", 0.2},
	{"GPM_Vmax", 2525.8},
	{"GPM_Km_3PG", 1.2},
	{"GPM_Km_2PG", 0.08},
	{"GPM_Keq", 0.19},
	{"ENO_Vmax", 365.8},
	{"ENO_Km_2PG", 0.04},
	{"ENO_Km_PEP", 0.5},
	{"ENO_Keq", 6.7},
	{"PYK_Vmax", 1088.0},
	{"PYK_Km_PEP", 0.14},
	{"PYK_Km_ADP", 0.53},
	{"PYK_Ka_F16BP", 0.19},
	{"PYK_n", 4.0},
	{"PDC_Vmax", 174.4},
	{"PDC_Km_pyruvate", 6.36},
	{"PDC_n", 1.9},
}

var glycolysisSpecies = []string{
	"glucose", "G6P", "F6P", "F16BP", "DHAP", "GAP",
	"BPG", "3PG", "2PG", "PEP", "pyruvate",
}

var glycolysisInitial = []float64{
	0.087, 2.45, 0.62, 5.51, 2.67, 0.68, 0.0, 0.9, 0.12, 0.07, 1.85,
}

var glycolysisEstimated = []string{
	"HXK_Vmax", "HXK_Km_glucose",
	"PGI_Vmax", "PGI_Km_G6P",
	"PFK_Vmax", "PFK_Km_F6P",
	"ALD_Vmax", "ALD_Km_F16BP",
	"TPI_Vmax", "TPI_Km_DHAP",
	"GAPDH_Vmax", "GAPDH_Km_GAP", "GAPDH_Km_NAD",
	"PGK_Vmax", "PGK_Km_13BPG",
	"GPM_Vmax", "GPM_Km_3PG",
	"ENO_Vmax", "ENO_Km_2PG",
	"PYK_Vmax", "PYK_Km_PEP",
	"PDC_Km_pyruvate",
}

// Glycolysis is the eleven-species yeast glycolysis model from glucose
// to pyruvate. Kinetics follow the Teusink-style laws: product-inhibited
// hexokinase, AMP-activated phosphofructokinase, reversible isomerase and
// mutase steps, F16BP-activated pyruvate kinase and a Hill-type
// decarboxylase drain.
type Glycolysis struct{}

func (Glycolysis) Name() string { return "glycolysis" }

func (Glycolysis) Description() string {
	return "yeast glycolysis, glucose to pyruvate, 11 species"
}

func (Glycolysis) Species() []string { return append([]string(nil), glycolysisSpecies...) }

func (Glycolysis) ParameterNames() []string { return catalogNames(glycolysisCatalog) }

func (Glycolysis) Defaults() []float64 { return catalogValues(glycolysisCatalog) }

func (Glycolysis) InitialState() []float64 { return append([]float64(nil), glycolysisInitial...) }

func (Glycolysis) DefaultGrid() []float64 { return TimeGrid(0, 2, 50) }

func (Glycolysis) EstimatedNames() []string { return append([]string(nil), glycolysisEstimated...) }

func (Glycolysis) Derivatives(dst, y, p []float64, _ float64) {
	glucose := y[glySpGlucose]
	g6p := y[glySpG6P]
	f6p := y[glySpF6P]
	f16bp := y[glySpF16BP]
	dhap := y[glySpDHAP]
	gap := y[glySpGAP]
	bpg := y[glySpBPG]
	pg3 := y[glySp3PG]
	pg2 := y[glySp2PG]
	pep := y[glySpPEP]
	pyr := y[glySpPyruvate]

	// HXK: T6P raises the apparent glucose Km, G6P inhibits the product side.
	kmApp := p[glyHXKKmGlucose] * (1 + glyT6P/p[glyHXKKiT6P])
	vHXK := p[glyHXKVmax] * (glucose / (kmApp + glucose)) / (1 + g6p/p[glyHXKKiG6P])

	vPGI := p[glyPGIVmax]*g6p/(p[glyPGIKmG6P]+g6p) -
		p[glyPGIVmax]/p[glyPGIKeq]*f6p/(p[glyPGIKmF6P]+f6p)

	// PFK: ATP is substrate and inhibitor, AMP activates, F6P binds
	// cooperatively with Hill coefficient PFK_n.
	atpTerm := glyATP / (p[glyPFKKmATP] * (1 + glyATP/p[glyPFKKiATP]))
	ampFactor := 1 + glyAMP/p[glyPFKKaAMP]
	f6pHill := math.Pow(f6p/p[glyPFKKmF6P], p[glyPFKN])
	vPFK := p[glyPFKVmax] * ampFactor * (f6pHill / (1 + f6pHill)) * (atpTerm / (1 + atpTerm))

	vALD := p[glyALDVmax]*f16bp/(p[glyALDKmF16BP]+f16bp) -
		p[glyALDVmax]/p[glyALDKeq]*(dhap*gap)/((p[glyALDKmDHAP]+dhap)*(p[glyALDKmGAP]+gap))

	vTPI := p[glyTPIVmax]*dhap/(p[glyTPIKmDHAP]+dhap) -
		p[glyTPIVmax]/p[glyTPIKeq]*gap/(p[glyTPIKmGAP]+gap)

	vGAPDH := p[glyGAPDHVmax] * (gap / (p[glyGAPDHKmGAP] + gap)) *
		(glyNAD / (p[glyGAPDHKmNAD] + glyNAD)) * (glyPi / (p[glyGAPDHKmPi] + glyPi))

	vPGK := p[glyPGKVmax] * (bpg / (p[glyPGKKm13BPG] + bpg)) * (glyADP / (p[glyPGKKmADP] + glyADP))

	vGPM := p[glyGPMVmax]*pg3/(p[glyGPMKm3PG]+pg3) -
		p[glyGPMVmax]/p[glyGPMKeq]*pg2/(p[glyGPMKm2PG]+pg2)

	vENO := p[glyENOVmax]*pg2/(p[glyENOKm2PG]+pg2) -
		p[glyENOVmax]/p[glyENOKeq]*pep/(p[glyENOKmPEP]+pep)

	// PYK: F16BP feedforward activation with Hill coefficient PYK_n.
	hill := math.Pow(f16bp/p[glyPYKKaF16BP], p[glyPYKN])
	fbpFactor := 1 + hill/(1+hill)
	vPYK := p[glyPYKVmax] * fbpFactor * (pep / (p[glyPYKKmPEP] + pep)) * (glyADP / (p[glyPYKKmADP] + glyADP))

	pyrHill := math.Pow(pyr, p[glyPDCN])
	vPDC := p[glyPDCVmax] * pyrHill / (math.Pow(p[glyPDCKmPyruvate], p[glyPDCN]) + pyrHill)

	dst[glySpGlucose] = -vHXK
	dst[glySpG6P] = vHXK - vPGI
	dst[glySpF6P] = vPGI - vPFK
	dst[glySpF16BP] = vPFK - vALD
	dst[glySpDHAP] = vALD - vTPI
	dst[glySpGAP] = vALD + vTPI - vGAPDH
	dst[glySpBPG] = vGAPDH - vPGK
	dst[glySp3PG] = vPGK - vGPM
	dst[glySp2PG] = vGPM - vENO
	dst[glySpPEP] = vENO - vPYK
	dst[glySpPyruvate] = vPYK - vPDC
}
