package retrieval

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
)

// blockSeparator joins rendered context blocks.
const blockSeparator = "\n\n---\n\n"

// maxWebsiteContentRunes truncates unstructured chunks for the prompt.
const maxWebsiteContentRunes = 600

// renderSelection turns the ranked candidates into the final context string
// and source list.
//
// The section hint is advisory: it only skips candidates when the pool is
// large (>10) and the candidate's section is clearly unrelated. If every
// candidate gets filtered away, the top candidates are emitted unfiltered -
// an imperfect passage beats refusing to answer.
func renderSelection(scored []scoredCandidate, pool []vectorstore.Candidate, opts Options, keep int) (string, []datatypes.Source) {
	hint := ""
	if opts.SectionHint != "" {
		hint = normalizeSection(opts.SectionHint)
	}

	var blocks []string
	var sources []datatypes.Source
	seen := make(map[string]bool)

	for _, s := range scored {
		if len(blocks) >= keep {
			break
		}
		meta := s.cand.Document.Metadata

		if hint != "" && len(pool) > 10 && !sectionMatches(meta["section"], hint) {
			slog.Debug("Candidate skipped by section hint",
				"section", meta["section"], "hint", opts.SectionHint)
			continue
		}

		blocks = append(blocks, renderCandidate(s.cand))
		appendSource(&sources, seen, meta)
	}

	if len(blocks) == 0 {
		return renderUnfiltered(scored, keep)
	}

	return strings.Join(blocks, blockSeparator), sources
}

// renderUnfiltered is the graceful fallback when filtering removed
// everything.
func renderUnfiltered(scored []scoredCandidate, keep int) (string, []datatypes.Source) {
	var blocks []string
	var sources []datatypes.Source
	seen := make(map[string]bool)

	for _, s := range scored {
		if len(blocks) >= keep {
			break
		}
		blocks = append(blocks, renderCandidate(s.cand))
		appendSource(&sources, seen, s.cand.Document.Metadata)
	}
	if len(blocks) == 0 {
		return "", nil
	}
	slog.Warn("All candidates filtered, emitting top results unfiltered", "count", len(blocks))
	return strings.Join(blocks, blockSeparator), sources
}

// renderCandidate produces the role-specific prompt rendering for one
// candidate.
func renderCandidate(cand vectorstore.Candidate) string {
	meta := cand.Document.Metadata
	if cand.Collection == vectorstore.CollectionIsta {
		switch meta["type"] {
		case "emploi_du_temps":
			return renderSchedule(meta)
		case "efm":
			return renderExam(meta)
		case "parrain":
			return renderSponsor(meta)
		default:
			return cand.Document.Content
		}
	}
	return renderWebsite(cand.Document)
}

func renderSchedule(meta map[string]string) string {
	groupe := meta["groupe"]
	if groupe == "" {
		groupe = "Groupe inconnu"
	}
	lines := []string{
		fmt.Sprintf("📅 Emploi du temps - %s", groupe),
		fmt.Sprintf("🕐 %s %s", capitalize(meta["jour"]), meta["heure"]),
		fmt.Sprintf("📚 Module: %s", meta["module"]),
		fmt.Sprintf("👨‍🏫 Professeur: %s", meta["professeur"]),
		fmt.Sprintf("🏫 Salle: %s", meta["salle"]),
	}
	return strings.Join(lines, "\n")
}

func renderExam(meta map[string]string) string {
	lines := []string{
		"📝 Examen EFM",
		fmt.Sprintf("📚 Module: %s", meta["module"]),
		fmt.Sprintf("📅 Date: %s", meta["date"]),
		fmt.Sprintf("🕐 Heure: %s", meta["heure"]),
	}
	return strings.Join(lines, "\n")
}

func renderSponsor(meta map[string]string) string {
	lines := []string{
		"👥 Parrain de classe",
		fmt.Sprintf("Groupe: %s", meta["groupe"]),
		fmt.Sprintf("Parrain: %s", meta["parrain"]),
	}
	return strings.Join(lines, "\n")
}

func renderWebsite(doc vectorstore.Document) string {
	meta := doc.Metadata
	var parts []string

	if meta["title"] != "" {
		parts = append(parts, "Titre: "+meta["title"])
	}
	if meta["section"] != "" && meta["section"] != "accueil" {
		parts = append(parts, "Section: "+meta["section"])
	}
	if meta["url"] != "" {
		parts = append(parts, "URL source: "+meta["url"])
	}

	parts = append(parts, "Contenu:\n"+truncateRunes(doc.Content, maxWebsiteContentRunes))
	return strings.Join(parts, "\n")
}

// appendSource records the candidate's source, deduplicated on (url, title).
// Structured entries carry no URL and therefore surface no source.
func appendSource(sources *[]datatypes.Source, seen map[string]bool, meta map[string]string) {
	url := meta["url"]
	if url == "" {
		return
	}
	title := meta["title"]
	if title == "" {
		title = "Page sans titre"
	}
	key := url + "\x00" + title
	if seen[key] {
		return
	}
	seen[key] = true
	*sources = append(*sources, datatypes.Source{
		Title:   title,
		Section: meta["section"],
		URL:     url,
	})
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRight(string(runes[:n]), " \n\t") + "..."
}

// capitalize upper-cases the first rune, used for weekday labels.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
