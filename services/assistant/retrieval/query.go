package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Query Understanding
// =============================================================================

// QueryAnalysis is the deterministic derivation of a raw query. No model is
// involved: language, intent, group, and day come from closed rules so the
// same query always produces the same retrieval behavior.
type QueryAnalysis struct {
	// Language is "ar" when the query contains any Arabic-script
	// codepoint, "fr" otherwise.
	Language string

	// Intent is the dominant intent key, or "" when no group matched.
	// The first matching group in the fixed iteration order wins.
	Intent string

	// SourceType is the source preference the dominant intent implies:
	// "app" for notif/live, "site" for every other intent, "" without one.
	SourceType string

	// Group is the canonical class group (e.g. "NTIC2-FS201"), or "".
	Group string

	// Day is the detected French weekday, or "".
	Day string

	// ExpandedQuery is the retrieval query: the original text plus either
	// the group expansion tokens or the deduplicated trigger words of all
	// matched intents.
	ExpandedQuery string

	// Tokens are the unique tokens of the expanded query longer than two
	// runes, used for keyword scoring.
	Tokens []string
}

// intentGroup couples an intent key with its trigger words.
type intentGroup struct {
	key   string
	terms []string
}

// intentGroups is the closed keyword table. Order matters: a query matching
// several groups takes the FIRST as dominant ("emploi" appears under both
// edt and debouches; edt wins).
var intentGroups = []intentGroup{
	{"rentree", []string{"rentrée", "rentree", "démarrage", "demarrage", "début", "debut", "start", "reprise", "back", "school", "2025-2026"}},
	{"efm", []string{"efm", "examen", "regional", "régional", "convocation", "calendrier"}},
	{"stage", []string{"stage", "internship", "entreprise", "convention", "decembre", "décembre"}},
	{"edt", []string{"emploi", "edt", "planning", "horaire", "schedule", "temps"}},
	{"regles", []string{"blouse", "badge", "accès", "acces", "obligatoire"}},
	{"notif", []string{"notification", "push", "alerte", "convocation", "efm"}},
	{"live", []string{"live", "monitoring", "temps", "réel", "reel"}},
	{"debouches", []string{"debouches", "débouchés", "emploi", "métier", "travail", "carriere", "carrière", "opportunite", "opportunité"}},
	{"parrain", []string{"parrain", "mentor", "responsable", "encadrant", "coach"}},
	{"contact", []string{"contact", "email", "site", "web", "telephone", "téléphone", "adresse", "coordonnee", "coordonnées"}},
	{"horaires", []string{"horaire", "heure", "entree", "ouverture", "fermeture", "portail", "acces"}},
}

// appIntents are the intents answered by the mobile app rather than the
// institute site.
var appIntents = map[string]bool{"notif": true, "live": true}

// intentTypeMatch maps an intent to the structured document type it boosts.
// horaires is special-cased on info_type in the scorer.
var intentTypeMatch = map[string]string{
	"edt":       "emploi_du_temps",
	"efm":       "efm",
	"debouches": "debouches",
	"parrain":   "parrain",
	"contact":   "institution",
	"stage":     "stage",
	"regles":    "institution",
}

// groupPattern extracts class groups like "NTIC2-FS201", "fs201", "dev101".
var groupPattern = regexp.MustCompile(`(?:ntic2[- ]?)?(fs|dev|id|ge)(\d{3})`)

// weekdays in detection order; the first substring match wins.
var weekdays = []string{"lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi", "dimanche"}

// arabicRange matches any Arabic-script codepoint.
var arabicRange = regexp.MustCompile(`[\x{0600}-\x{06FF}]`)

// Analyze derives the QueryAnalysis for a raw query.
func Analyze(query string) QueryAnalysis {
	lower := strings.ToLower(query)

	analysis := QueryAnalysis{
		Language: "fr",
	}
	if arabicRange.MatchString(query) {
		analysis.Language = "ar"
	}

	if m := groupPattern.FindStringSubmatch(lower); m != nil {
		analysis.Group = "NTIC2-" + strings.ToUpper(m[1]) + m[2]
	}

	for _, day := range weekdays {
		if strings.Contains(lower, day) {
			analysis.Day = day
			break
		}
	}

	// Every matching group contributes expansion terms; the first sets the
	// dominant intent.
	var expandedTerms []string
	for _, group := range intentGroups {
		matched := false
		for _, term := range group.terms {
			if strings.Contains(lower, term) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		expandedTerms = append(expandedTerms, group.terms...)
		if analysis.Intent == "" {
			analysis.Intent = group.key
			if appIntents[group.key] {
				analysis.SourceType = "app"
			} else {
				analysis.SourceType = "site"
			}
		}
	}

	switch {
	case analysis.Group != "":
		analysis.ExpandedQuery = query + " " + analysis.Group + " groupe emploi temps"
	case len(expandedTerms) > 0:
		analysis.ExpandedQuery = query + " " + strings.Join(dedupeSorted(expandedTerms), " ")
	default:
		analysis.ExpandedQuery = query
	}

	analysis.Tokens = queryTokens(analysis.ExpandedQuery, 2)
	return analysis
}

// dedupeSorted returns the unique terms in sorted order, matching the
// deterministic expansion the index was tuned against.
func dedupeSorted(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// queryTokens splits text into unique lowercase tokens longer than minRunes.
func queryTokens(text string, minRunes int) []string {
	lower := strings.ToLower(strings.ReplaceAll(text, "/", " "))
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(lower) {
		if utf8.RuneCountInString(w) <= minRunes || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
