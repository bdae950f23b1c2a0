package insight

import "errors"

var messages = map[string]map[error]string{
	"en": {
		ErrTooFewItems:      "Add at least 2 items for analysis.",
		ErrGenerationFailed: "Failed to fetch insights.",
		ErrRateLimited:      "Too many analysis requests, try again in a minute.",
	},
	"sk": {
		ErrTooFewItems:      "Pridajte aspoň 2 položky pre analýzu.",
		ErrGenerationFailed: "Nepodarilo sa načítať analýzu.",
		ErrRateLimited:      "Príliš veľa požiadaviek na analýzu, skúste to o minútu.",
	},
}

// Message returns the user-facing text for err in lang. Unknown errors get the
// generation failure text.
func Message(lang string, err error) string {
	table := messages[normalizeLang(lang)]
	for _, known := range []error{ErrTooFewItems, ErrRateLimited, ErrGenerationFailed} {
		if errors.Is(err, known) {
			return table[known]
		}
	}
	return table[ErrGenerationFailed]
}
