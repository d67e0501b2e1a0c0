package pricing

// Option is a selectable value on the quote form.
type Option struct {
	Code  string  `json:"code"`
	Label string  `json:"label"`
	Rate  float64 `json:"rate,omitempty"`
}

// WindowTypes are the opening types the workshop builds.
var WindowTypes = []Option{
	{Code: "sliding", Label: "نافذة منزلقة"},
	{Code: "casement", Label: "نافذة مفصلية"},
	{Code: "door", Label: "باب"},
	{Code: "facade", Label: "واجهة زجاجية"},
	{Code: "mosquito_net", Label: "ناموسية"},
}

var profileLabels = map[string]string{
	Aluminium: "ألمنيوم",
	PVC:       "بي في سي",
}

var glassLabels = map[string]string{
	GlassSimple:     "زجاج عادي 6 مم",
	GlassDouble:     "زجاج مزدوج",
	GlassReflective: "زجاج عاكس",
	GlassFrosted:    "زجاج مصنفر",
}

// Catalogue is what the quote form needs to render its selects.
type Catalogue struct {
	WindowTypes []Option   `json:"window_types"`
	Profiles    []Option   `json:"profiles"`
	Glass       []Option   `json:"glass"`
	Defaults    Components `json:"defaults"`
	WasteFactor float64    `json:"waste_factor"`
}

// IsWindowType reports whether code names a known opening type.
func IsWindowType(code string) bool {
	for _, o := range WindowTypes {
		if o.Code == code {
			return true
		}
	}
	return false
}

// BuildCatalogue lists the options priced by r.
func BuildCatalogue(r Rates) Catalogue {
	c := Catalogue{
		WindowTypes: WindowTypes,
		Defaults:    r.Defaults,
		WasteFactor: r.WasteFactor,
	}
	for _, name := range r.ProfileNames() {
		c.Profiles = append(c.Profiles, Option{Code: name, Label: label(profileLabels, name), Rate: r.Profile[name]})
	}
	for _, name := range r.GlassNames() {
		c.Glass = append(c.Glass, Option{Code: name, Label: label(glassLabels, name), Rate: r.Glass[name]})
	}
	return c
}

func label(m map[string]string, code string) string {
	if l, ok := m[code]; ok {
		return l
	}
	return code
}

// WindowTypeLabel returns the Arabic name of an opening type.
func WindowTypeLabel(code string) string {
	for _, o := range WindowTypes {
		if o.Code == code {
			return o.Label
		}
	}
	return code
}

// ProfileLabel returns the Arabic name of a profile material.
func ProfileLabel(code string) string { return label(profileLabels, code) }

// GlassLabel returns the Arabic name of a glass type.
func GlassLabel(code string) string { return label(glassLabels, code) }
