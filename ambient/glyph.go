package ambient

// Glyph maps a weather condition category to one of the fixed display
// glyphs. The mapping is total: unrecognized categories get the cloud glyph.
func Glyph(condition string) string {
	switch condition {
	case "Clear":
		return "sun"
	case "Clouds":
		return "cloud"
	case "Rain":
		return "cloud-rain"
	case "Snow":
		return "cloud-snow"
	case "Mist", "Fog", "Haze":
		return "cloud-fog"
	default:
		return "cloud"
	}
}
