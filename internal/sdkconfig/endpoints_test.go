package sdkconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownRegionsFallBackToUSA(t *testing.T) {
	usa := regionTable[RegionUSA]
	for _, region := range []string{"", "JP", "europe", "AU", "preview-2"} {
		assert.Equal(t, usa, RegionEndpoints(region), "region %q", region)
	}
}

func TestKnownRegionsAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, RegionEU, ParseRegion(" eu "))
	assert.Equal(t, RegionAUS, ParseRegion("Aus"))
	assert.Equal(t, RegionPreview, ParseRegion("preview"))
	assert.Equal(t, "https://eu.passlive.acuant.net", RegionEndpoints("eu").Liveness)
}

func TestOverridesTakePrecedenceFieldByField(t *testing.T) {
	resolved := ResolveEndpoints("EU", &Endpoints{FaceRecognition: "https://frm.example.test/"})

	eu := regionTable[RegionEU]
	assert.Equal(t, "https://frm.example.test", resolved.FaceRecognition)
	assert.Equal(t, eu.Authentication, resolved.Authentication)
	assert.Equal(t, eu.DocumentIdentity, resolved.DocumentIdentity)
	assert.Equal(t, eu.Liveness, resolved.Liveness)
	assert.Equal(t, eu.Policy, resolved.Policy)
	assert.Equal(t, eu.HealthInsurance, resolved.HealthInsurance)
}

func TestOverridesWithoutRegionUseUSADefaults(t *testing.T) {
	resolved := ResolveEndpoints("", &Endpoints{Liveness: "https://live.example.test"})

	assert.Equal(t, "https://live.example.test", resolved.Liveness)
	assert.Equal(t, regionTable[RegionUSA].DocumentIdentity, resolved.DocumentIdentity)
}

func TestBlankOverrideFieldsAreIgnored(t *testing.T) {
	resolved := ResolveEndpoints("AUS", &Endpoints{Authentication: "   "})
	assert.Equal(t, regionTable[RegionAUS], resolved)
}
