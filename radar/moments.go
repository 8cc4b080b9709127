package radar

// Standard moment names (CfRadial2 vocabulary, common across vendors).
const (
	DBZH  = "DBZH"  // reflectivity, horizontal channel
	DBZV  = "DBZV"  // reflectivity, vertical channel
	VRADH = "VRADH" // radial velocity, horizontal channel
	VRADV = "VRADV" // radial velocity, vertical channel
	WRADH = "WRADH" // spectrum width, horizontal channel
	WRADV = "WRADV" // spectrum width, vertical channel
	ZDR   = "ZDR"   // differential reflectivity
	PHIDP = "PHIDP" // differential phase
	KDP   = "KDP"   // specific differential phase
	RHOHV = "RHOHV" // cross-correlation coefficient
	LDRH  = "LDRH"  // linear depolarization ratio, horizontal
	LDRV  = "LDRV"  // linear depolarization ratio, vertical
	SNRH  = "SNRH"  // signal-to-noise ratio, horizontal
	SNRV  = "SNRV"  // signal-to-noise ratio, vertical
	NCP   = "NCP"   // normalized coherent power
)

// MomentInfo describes a standard moment: canonical short name, CF
// standard name, long name and units.
type MomentInfo struct {
	Name         string
	StandardName string
	LongName     string
	Units        string
}

var momentInfos = map[string]MomentInfo{
	DBZH: {DBZH, "equivalent_reflectivity_factor",
		"Equivalent reflectivity factor (horizontal channel)", "dBZ"},
	DBZV: {DBZV, "equivalent_reflectivity_factor",
		"Equivalent reflectivity factor (vertical channel)", "dBZ"},
	VRADH: {VRADH, "radial_velocity_of_scatterers_away_from_instrument",
		"Radial velocity (horizontal channel)", "m/s"},
	VRADV: {VRADV, "radial_velocity_of_scatterers_away_from_instrument",
		"Radial velocity (vertical channel)", "m/s"},
	WRADH: {WRADH, "doppler_spectrum_width",
		"Doppler spectrum width (horizontal channel)", "m/s"},
	WRADV: {WRADV, "doppler_spectrum_width",
		"Doppler spectrum width (vertical channel)", "m/s"},
	ZDR: {ZDR, "differential_reflectivity_hv",
		"Differential reflectivity", "dB"},
	PHIDP: {PHIDP, "differential_phase_hv",
		"Differential propagation phase", "degrees"},
	KDP: {KDP, "specific_differential_phase_hv",
		"Specific differential phase", "degrees/km"},
	RHOHV: {RHOHV, "cross_correlation_ratio_hv",
		"Cross-correlation coefficient", ""},
	LDRH: {LDRH, "log_linear_depolarization_ratio_hv",
		"Linear depolarization ratio (horizontal channel)", "dB"},
	LDRV: {LDRV, "log_linear_depolarization_ratio_vh",
		"Linear depolarization ratio (vertical channel)", "dB"},
	SNRH: {SNRH, "signal_to_noise_ratio",
		"Signal-to-noise ratio (horizontal channel)", "dB"},
	SNRV: {SNRV, "signal_to_noise_ratio",
		"Signal-to-noise ratio (vertical channel)", "dB"},
	NCP: {NCP, "normalized_coherent_power",
		"Normalized coherent power", ""},
}

var momentAliases = map[string]string{
	"DBZ":            DBZH,
	"reflectivity":   DBZH,
	"VEL":            VRADH,
	"velocity":       VRADH,
	"WIDTH":          WRADH,
	"spectrum_width": WRADH,
	"SNR":            SNRH,
}

// LookupMomentInfo returns the catalog entry for a standard moment name
// or one of its common aliases (DBZ, VEL, WIDTH, SNR, reflectivity,
// velocity, spectrum_width). The lookup supplies metadata only; moment
// maps keep the exact names found in the file.
func LookupMomentInfo(name string) (MomentInfo, bool) {
	if canonical, has := momentAliases[name]; has {
		name = canonical
	}
	info, has := momentInfos[name]
	return info, has
}
