package filter

// Sample IDs known to be mislabeled in the Emilia shards.
var defaultOptOutZH = []string{
	"ZH_B00041_S06226", "ZH_B00042_S09204", "ZH_B00065_S09430",
	"ZH_B00065_S09431", "ZH_B00066_S09327", "ZH_B00066_S09328",
}

var defaultOptOutEN = []string{
	"EN_B00013_S00913", "EN_B00042_S00120", "EN_B00055_S04111", "EN_B00061_S00693",
	"EN_B00061_S01494", "EN_B00061_S03375", "EN_B00059_S00092", "EN_B00111_S04300",
	"EN_B00087_S03811", "EN_B00059_S00950", "EN_B00089_S00946",
	"EN_B00078_S05127", "EN_B00070_S04089", "EN_B00074_S09659", "EN_B00061_S06983",
	"EN_B00061_S07060", "EN_B00059_S08397", "EN_B00082_S06192", "EN_B00091_S01238",
	"EN_B00089_S07349", "EN_B00070_S04343", "EN_B00061_S02400", "EN_B00076_S01262",
	"EN_B00068_S06467", "EN_B00076_S02943", "EN_B00064_S05954", "EN_B00061_S05386",
	"EN_B00066_S06544", "EN_B00076_S06944", "EN_B00072_S08620", "EN_B00076_S07135",
	"EN_B00076_S09127", "EN_B00065_S00497", "EN_B00059_S06227", "EN_B00063_S02859",
	"EN_B00075_S01547", "EN_B00061_S08286", "EN_B00079_S02901", "EN_B00092_S03643",
	"EN_B00096_S08653", "EN_B00063_S04297", "EN_B00063_S04614", "EN_B00079_S04698",
	"EN_B00104_S01666", "EN_B00061_S09504", "EN_B00061_S09694", "EN_B00065_S05444",
	"EN_B00063_S06860", "EN_B00065_S05725", "EN_B00069_S07628", "EN_B00083_S03875",
	"EN_B00071_S07665", "EN_B00062_S04187", "EN_B00065_S09873",
	"EN_B00065_S09922", "EN_B00084_S02463", "EN_B00067_S05066", "EN_B00106_S08060",
	"EN_B00073_S06399", "EN_B00073_S09236", "EN_B00087_S00432", "EN_B00085_S05618",
	"EN_B00064_S01262", "EN_B00072_S01739", "EN_B00059_S03913", "EN_B00069_S04036",
	"EN_B00067_S05623", "EN_B00060_S05389", "EN_B00060_S07290", "EN_B00062_S08995",
}

// Characters that only show up in OCR or transcription artifacts.
const (
	defaultForbiddenZH = "いて"
	defaultForbiddenEN = "اいて"
)
