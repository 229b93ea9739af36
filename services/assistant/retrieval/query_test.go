package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_LanguageDetection(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"french query", "quel est l'emploi du temps", "fr"},
		{"arabic query", "ما هو جدول الحصص", "ar"},
		{"mixed query with arabic", "emploi du temps جدول", "ar"},
		{"empty query", "", "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.query).Language)
		})
	}
}

func TestAnalyze_GroupExtraction(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"full form", "emploi du temps NTIC2-FS201", "NTIC2-FS201"},
		{"lowercase short form", "edt fs201 svp", "NTIC2-FS201"},
		{"dev group", "planning dev101", "NTIC2-DEV101"},
		{"space separated prefix", "ntic2 ge305 lundi", "NTIC2-GE305"},
		{"no group", "quels sont les horaires", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.query).Group)
		})
	}
}

func TestAnalyze_DayExtraction(t *testing.T) {
	analysis := Analyze("cours de lundi et mardi")
	// First weekday in list order wins.
	assert.Equal(t, "lundi", analysis.Day)

	assert.Empty(t, Analyze("quels cours demain").Day)
}

func TestAnalyze_DominantIntent(t *testing.T) {
	// "emploi" triggers both edt and debouches; the fixed order makes edt
	// dominant.
	analysis := Analyze("emploi du temps du groupe")
	assert.Equal(t, "edt", analysis.Intent)
	assert.Equal(t, "site", analysis.SourceType)

	// debouches wins when only its distinctive terms appear.
	analysis = Analyze("quels sont les débouchés de la filière")
	assert.Equal(t, "debouches", analysis.Intent)

	// App intents imply the app source.
	analysis = Analyze("je ne reçois pas les notifications push")
	assert.Equal(t, "notif", analysis.Intent)
	assert.Equal(t, "app", analysis.SourceType)
}

func TestAnalyze_Expansion(t *testing.T) {
	t.Run("intent terms are appended deduplicated", func(t *testing.T) {
		analysis := Analyze("date des examens efm")
		assert.True(t, strings.HasPrefix(analysis.ExpandedQuery, "date des examens efm "))
		assert.Contains(t, analysis.ExpandedQuery, "convocation")
		assert.Contains(t, analysis.ExpandedQuery, "calendrier")
	})

	t.Run("group expansion takes precedence", func(t *testing.T) {
		analysis := Analyze("emploi du temps fs201")
		assert.Equal(t, "emploi du temps fs201 NTIC2-FS201 groupe emploi temps", analysis.ExpandedQuery)
	})

	t.Run("unknown intent leaves the query untouched", func(t *testing.T) {
		analysis := Analyze("bonjour comment vas-tu")
		assert.Equal(t, "bonjour comment vas-tu", analysis.ExpandedQuery)
		assert.Empty(t, analysis.Intent)
		assert.Empty(t, analysis.SourceType)
	})
}

func TestAnalyze_Tokens(t *testing.T) {
	analysis := Analyze("où est la salle B12/B13")
	// Tokens are unique, lowercased, and longer than two runes;
	// slashes split words.
	assert.Contains(t, analysis.Tokens, "salle")
	assert.Contains(t, analysis.Tokens, "b12")
	assert.Contains(t, analysis.Tokens, "b13")
	assert.NotContains(t, analysis.Tokens, "où")
	assert.NotContains(t, analysis.Tokens, "la")
}

func TestQueryTokens_MinLength(t *testing.T) {
	tokens := queryTokens("un mot long portail", 3)
	assert.ElementsMatch(t, []string{"long", "portail"}, tokens)
}
