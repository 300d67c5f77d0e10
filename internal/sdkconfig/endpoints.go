package sdkconfig

import "strings"

// Region selects a bundle of default vendor endpoints.
type Region string

const (
	RegionUSA     Region = "USA"
	RegionEU      Region = "EU"
	RegionAUS     Region = "AUS"
	RegionPreview Region = "PREVIEW"
)

// Endpoints holds the named vendor service base URLs.
type Endpoints struct {
	Authentication   string `json:"acasEndpoint,omitempty"`
	DocumentIdentity string `json:"assureIdEndpoint,omitempty"`
	FaceRecognition  string `json:"frmEndpoint,omitempty"`
	Liveness         string `json:"passiveLivenessEndpoint,omitempty"`
	Policy           string `json:"ozoneEndpoint,omitempty"`
	HealthInsurance  string `json:"healthInsuranceEndpoint,omitempty"`
}

var regionTable = map[Region]Endpoints{
	RegionUSA: {
		Authentication:   "https://us.acas.acuant.net",
		DocumentIdentity: "https://services.assureid.net",
		FaceRecognition:  "https://frm.acuant.net",
		Liveness:         "https://us.passlive.acuant.net",
		Policy:           "https://ozone.acuant.net",
		HealthInsurance:  "https://medicscan.acuant.net",
	},
	RegionEU: {
		Authentication:   "https://eu.acas.acuant.net",
		DocumentIdentity: "https://eu.assureid.acuant.net",
		FaceRecognition:  "https://eu.frm.acuant.net",
		Liveness:         "https://eu.passlive.acuant.net",
		Policy:           "https://eu.ozone.acuant.net",
	},
	RegionAUS: {
		Authentication:   "https://aus.acas.acuant.net",
		DocumentIdentity: "https://aus.assureid.acuant.net",
		FaceRecognition:  "https://aus.frm.acuant.net",
		Liveness:         "https://aus.passlive.acuant.net",
		Policy:           "https://aus.ozone.acuant.net",
	},
	RegionPreview: {
		Authentication:   "https://preview.acas.acuant.net",
		DocumentIdentity: "https://preview.assureid.acuant.net",
		FaceRecognition:  "https://preview.face.acuant.net",
		Liveness:         "https://preview.passlive.acuant.net",
		Policy:           "https://preview.ozone.acuant.net",
		HealthInsurance:  "https://preview.medicscan.acuant.net",
	},
}

// ParseRegion normalizes a symbolic region code. Unknown codes map to USA.
func ParseRegion(s string) Region {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := regionTable[r]; ok {
		return r
	}
	return RegionUSA
}

// RegionEndpoints returns the default endpoint set for a region code.
func RegionEndpoints(region string) Endpoints {
	return regionTable[ParseRegion(region)]
}

// ResolveEndpoints applies non-empty override fields on top of the region table.
func ResolveEndpoints(region string, overrides *Endpoints) Endpoints {
	resolved := RegionEndpoints(region)
	if overrides == nil {
		return resolved
	}
	pick := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = strings.TrimRight(v, "/")
		}
	}
	pick(&resolved.Authentication, overrides.Authentication)
	pick(&resolved.DocumentIdentity, overrides.DocumentIdentity)
	pick(&resolved.FaceRecognition, overrides.FaceRecognition)
	pick(&resolved.Liveness, overrides.Liveness)
	pick(&resolved.Policy, overrides.Policy)
	pick(&resolved.HealthInsurance, overrides.HealthInsurance)
	return resolved
}
