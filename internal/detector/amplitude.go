package detector

import (
	"regexp"

	"analytics-tag-checker/internal/models"
)

const amplitudeKey = `([A-Za-z0-9]{32})`

// amplitudePatterns covers the known call-site idioms. The list is open: add
// a rule here and it takes part in the union below.
var amplitudePatterns = []Pattern{
	newPattern(models.VendorAmplitude, "init", `amplitude\.init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "api-key-param", `apiKey\s*[:=]\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "get-instance", `amplitude\.getInstance\(\)\.init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "init-config", `amplitude\.init\(\s*\{\s*apiKey\s*:\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "class-get-instance", `Amplitude\.getInstance\(\)\.init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "new-amplitude", `new\s+amplitude\.Amplitude\(\)\.init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "amplitude-client", `new\s+AmplitudeClient\(\)\.init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "react-initialize", `Amplitude\.initializeWith\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "browser-init", `init\(\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "config-field", `"amplitude"\s*:\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "sdk-v2", `createInstance\(\s*\{\s*apiKey\s*:\s*["']`+amplitudeKey+`["']`, 1),
	// variables whose name hints at a key: const ampApiKey = "..."
	newPattern(models.VendorAmplitude, "key-variable", `(?:const|let|var)\s+\w+(?:ApiKey|Key|Token|Config|amplitude|amp)\s*=\s*["']`+amplitudeKey+`["']`, 1),
	newPattern(models.VendorAmplitude, "json-key", `"(?:apiKey|api_key|amplitude_key)"\s*:\s*"`+amplitudeKey+`"`, 1),
}

var amplitudeJSONKeys = []string{"apiKey", "api_key", "amplitude_key"}

// amplitudeKeyShape re-validates matches; the looser rules can over-match.
var amplitudeKeyShape = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

var AmplitudeDomains = []string{
	"cdn.amplitude.com",
	"api.amplitude.com",
	"api2.amplitude.com",
	"amplitude.com",
}

// ExtractAmplitude returns 32 character Amplitude API keys found in the markup.
func ExtractAmplitude(markup string) []string {
	set := collect(markup, amplitudePatterns)
	set.add(jsonConfigValues(markup, amplitudeJSONKeys...)...)

	out := []string{}
	for _, key := range set.list() {
		if amplitudeKeyShape.MatchString(key) {
			out = append(out, key)
		}
	}
	return out
}
