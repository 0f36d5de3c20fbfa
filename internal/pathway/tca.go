package pathway

import "math"

// Species indices for the TCA state vector.
const (
	tcaSpPyr = iota
	tcaSpAcCoA
	tcaSpCitrate
	tcaSpIsocitrate
	tcaSpAKG
	tcaSpSucCoA
	tcaSpSuccinate
	tcaSpFumarate
	tcaSpMalate
	tcaSpOAA
	tcaSpeciesCount
)

// Fixed mitochondrial cofactor pool, mM.
const (
	tcaCoA  = 0.5
	tcaNAD  = 2.0
	tcaNADH = 0.1
	tcaFAD  = 0.5
	tcaGDP  = 1.0
	tcaPi   = 5.0
	tcaCa   = 0.001
	tcaATP  = 2.0
	tcaADP  = 0.05
)

// Constant cytosolic pyruvate feeding the transporter, mM.
const tcaPyrSupply = 0.5

// Concentrations are clamped here before rate evaluation. Keeps the
// near-zero pools from driving reversible terms negative.
const tcaFloor = 1e-10

// Parameter indices, aligned with tcaCatalog.
const (
	tcaPYRTVmax = iota
	tcaPYRTKm
	tcaPDHVmax
	tcaPDHKmPyruvate
	tcaPDHKmNAD
	tcaPDHKmCoA
	tcaCSVmax
	tcaCSKmAcCoA
	tcaCSKmOAA
	tcaCSKiATP
	tcaCSKiCitrate
	tcaACOVmax
	tcaACOKmCitrate
	tcaACOKmIsocitrate
	tcaACOKeq
	tcaICDHVmax
	tcaICDHKmIsocitrate
	tcaICDHKmNAD
	tcaICDHKaADP
	tcaICDHKaCa
	tcaKGDHVmax
	tcaKGDHKmAKG
	tcaKGDHKmNAD
	tcaKGDHKmCoA
	tcaKGDHKiSucCoA
	tcaKGDHKiNADH
	tcaKGDHKaCa
	tcaSCSVmax
	tcaSCSKmSucCoA
	tcaSCSKmGDP
	tcaSCSKmPi
	tcaSDHVmax
	tcaSDHKmSuccinate
	tcaSDHKmFAD
	tcaFHVmax
	tcaFHKmFumarate
	tcaFHKmMalate
	tcaFHKeq
	tcaMDHVmax
	tcaMDHKmMalate
	tcaMDHKmNAD
	tcaMDHKmOAA
	tcaMDHKmNADH
	tcaMDHKeq
	tcaParamCount
)

// Reference constants, mM and mM/min. Magnitudes follow the
// mitochondrial literature; the MDH velocity ratio is relaxed from the
// thermodynamic constant so the fast OAA mode stays integrable by the
// explicit stepper.
var tcaCatalog = []paramDef{
	{"PYR_transport_Vmax", 50.0},
	{"PYR_transport_Km", 0.019},
	{"PDH_Vmax", 100.0},
	{"PDH_Km_pyruvate", 0.025},
	{"PDH_Km_NAD", 0.05},
	{"PDH_Km_CoA", 0.013},
	{"CS_Vmax", 100.0},
	{"CS_Km_AcCoA", 0.013},
	{"CS_Km_OAA", 0.002},
	{"CS_Ki_ATP", 0.9},
	{"CS_Ki_citrate", 1.5},
	{"ACO_Vmax", 150.0},
	{"ACO_Km_citrate", 0.48},
	{"ACO_Km_isocitrate", 0.12},
	{"ACO_Keq", 0.067},
	{"ICDH_Vmax", 85.0},
	{"ICDH_Km_isocitrate", 0.11},
	{"ICDH_Km_NAD", 0.09},
	{"ICDH_Ka_ADP", 0.1},
	{"ICDH_Ka_Ca", 0.001},
	{"KGDH_Vmax", 75.0},
	{"KGDH_Km_aKG", 0.4},
	{"KGDH_Km_NAD", 0.038},
	{"KGDH_Km_CoA", 0.013},
	{"KGDH_Ki_SucCoA", 0.05},
	{"KGDH_Ki_NADH", 0.05},
	{"KGDH_Ka_Ca", 0.001},
	{"SCS_Vmax", 75.0},
	{"SCS_Km_SucCoA", 0.056},
	{"SCS_Km_GDP", 0.01},
	{"SCS_Km_Pi", 0.56},
	{"SDH_Vmax", 60.0},
	{"SDH_Km_succinate", 0.45},
	{"SDH_Km_FAD", 0.002},
	{"FH_Vmax", 200.0},
	{"FH_Km_fumarate", 0.044},
	{"FH_Km_malate", 0.25},
	{"FH_Keq", 4.4},
	{"MDH_Vmax", 180.0},
	{"MDH_Km_malate", 0.025},
	{"MDH_Km_NAD", 0.22},
	{"MDH_Km_OAA", 0.003},
	{"MDH_Km_NADH", 0.025},
	{"MDH_Keq", 0.4},
}

var tcaSpecies = []string{
	"PYR_mito", "AcCoA", "CIT", "ISOCIT", "aKG",
	"SucCoA", "SUC", "FUM", "MAL", "OAA",
}

var tcaInitial = []float64{
	0.5, 0.1, 0.5, 0.05, 0.1, 0.05, 0.5, 0.2, 0.5, 0.01,
}

var tcaEstimated = []string{
	"CS_Vmax", "CS_Km_AcCoA",
	"ACO_Vmax", "ACO_Km_citrate",
	"ICDH_Vmax", "ICDH_Km_isocitrate",
	"KGDH_Vmax", "KGDH_Km_aKG",
	"SCS_Vmax", "SCS_Km_SucCoA",
	"SDH_Vmax", "SDH_Km_succinate",
	"FH_Vmax", "FH_Km_fumarate",
	"MDH_Vmax", "MDH_Km_malate",
}

type tcaFluxes struct {
	PYRT, PDH, CS, ACO, ICDH, KGDH, SCS, SDH, FH, MDH float64
}

// TCA is the ten-species mitochondrial citric acid cycle fed by a
// constant cytosolic pyruvate supply. Citrate synthase carries product
// inhibition, the two dehydrogenase control points respond to calcium,
// and aconitase, fumarase and malate dehydrogenase run reversibly.
type TCA struct{}

func (TCA) Name() string { return "tca" }

func (TCA) Description() string {
	return "mitochondrial TCA cycle, pyruvate to oxaloacetate, 10 species"
}

func (TCA) Species() []string { return append([]string(nil), tcaSpecies...) }

func (TCA) ParameterNames() []string { return catalogNames(tcaCatalog) }

func (TCA) Defaults() []float64 { return catalogValues(tcaCatalog) }

func (TCA) InitialState() []float64 { return append([]float64(nil), tcaInitial...) }

func (TCA) DefaultGrid() []float64 { return TimeGrid(0, 5, 50) }

func (TCA) EstimatedNames() []string { return append([]string(nil), tcaEstimated...) }

func (TCA) rates(y, p []float64) tcaFluxes {
	pyr := math.Max(y[tcaSpPyr], tcaFloor)
	accoa := math.Max(y[tcaSpAcCoA], tcaFloor)
	cit := math.Max(y[tcaSpCitrate], tcaFloor)
	isocit := math.Max(y[tcaSpIsocitrate], tcaFloor)
	akg := math.Max(y[tcaSpAKG], tcaFloor)
	succoa := math.Max(y[tcaSpSucCoA], tcaFloor)
	suc := math.Max(y[tcaSpSuccinate], tcaFloor)
	fum := math.Max(y[tcaSpFumarate], tcaFloor)
	mal := math.Max(y[tcaSpMalate], tcaFloor)
	oaa := math.Max(y[tcaSpOAA], tcaFloor)

	var v tcaFluxes

	v.PYRT = p[tcaPYRTVmax] * tcaPyrSupply / (p[tcaPYRTKm] + tcaPyrSupply)

	v.PDH = p[tcaPDHVmax] * pyr * tcaNAD * tcaCoA /
		((p[tcaPDHKmPyruvate] + pyr) * (p[tcaPDHKmNAD] + tcaNAD) * (p[tcaPDHKmCoA] + tcaCoA))

	// CS with citrate product inhibition and ATP energy-state damping.
	v.CS = p[tcaCSVmax] * accoa * oaa /
		((p[tcaCSKmAcCoA] + accoa) * (p[tcaCSKmOAA] + oaa)) /
		(1 + cit/p[tcaCSKiCitrate]) / (1 + tcaATP/p[tcaCSKiATP])

	v.ACO = p[tcaACOVmax]*cit/(p[tcaACOKmCitrate]+cit) -
		p[tcaACOVmax]/p[tcaACOKeq]*isocit/(p[tcaACOKmIsocitrate]+isocit)

	// Calcium activates both dehydrogenase control points; ADP
	// additionally stimulates ICDH.
	caICDH := 1 + tcaCa/p[tcaICDHKaCa]
	adpICDH := 1 + tcaADP/p[tcaICDHKaADP]
	v.ICDH = p[tcaICDHVmax] * caICDH * adpICDH * isocit * tcaNAD /
		((p[tcaICDHKmIsocitrate] + isocit) * (p[tcaICDHKmNAD] + tcaNAD))

	caKGDH := 1 + tcaCa/p[tcaKGDHKaCa]
	v.KGDH = p[tcaKGDHVmax] * caKGDH /
		(1 + succoa/p[tcaKGDHKiSucCoA]) / (1 + tcaNADH/p[tcaKGDHKiNADH]) *
		akg * tcaNAD * tcaCoA /
		((p[tcaKGDHKmAKG] + akg) * (p[tcaKGDHKmNAD] + tcaNAD) * (p[tcaKGDHKmCoA] + tcaCoA))

	v.SCS = p[tcaSCSVmax] * succoa * tcaGDP * tcaPi /
		((p[tcaSCSKmSucCoA] + succoa) * (p[tcaSCSKmGDP] + tcaGDP) * (p[tcaSCSKmPi] + tcaPi))

	v.SDH = p[tcaSDHVmax] * suc * tcaFAD /
		((p[tcaSDHKmSuccinate] + suc) * (p[tcaSDHKmFAD] + tcaFAD))

	v.FH = p[tcaFHVmax]*fum/(p[tcaFHKmFumarate]+fum) -
		p[tcaFHVmax]/p[tcaFHKeq]*mal/(p[tcaFHKmMalate]+mal)

	v.MDH = p[tcaMDHVmax]*mal*tcaNAD/((p[tcaMDHKmMalate]+mal)*(p[tcaMDHKmNAD]+tcaNAD)) -
		p[tcaMDHVmax]/p[tcaMDHKeq]*oaa*tcaNADH/((p[tcaMDHKmOAA]+oaa)*(p[tcaMDHKmNADH]+tcaNADH))

	return v
}

// Fluxes reports the instantaneous reaction rates by enzyme name.
func (m TCA) Fluxes(y, p []float64) map[string]float64 {
	v := m.rates(y, p)
	return map[string]float64{
		"PYR_transport": v.PYRT,
		"PDH":           v.PDH,
		"CS":            v.CS,
		"ACO":           v.ACO,
		"ICDH":          v.ICDH,
		"KGDH":          v.KGDH,
		"SCS":           v.SCS,
		"SDH":           v.SDH,
		"FH":            v.FH,
		"MDH":           v.MDH,
	}
}

func (m TCA) Derivatives(dst, y, p []float64, _ float64) {
	v := m.rates(y, p)

	dst[tcaSpPyr] = v.PYRT - v.PDH
	dst[tcaSpAcCoA] = v.PDH - v.CS
	dst[tcaSpCitrate] = v.CS - v.ACO
	dst[tcaSpIsocitrate] = v.ACO - v.ICDH
	dst[tcaSpAKG] = v.ICDH - v.KGDH
	dst[tcaSpSucCoA] = v.KGDH - v.SCS
	dst[tcaSpSuccinate] = v.SCS - v.SDH
	dst[tcaSpFumarate] = v.SDH - v.FH
	dst[tcaSpMalate] = v.FH - v.MDH
	dst[tcaSpOAA] = v.MDH - v.CS
}
