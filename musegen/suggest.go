package musegen

import (
	"context"
	"strings"

	"github.com/musewave/maestro"
)

// Suggestion vocabulary. The LLM bridge is asked first when the user
// typed something; these lists are the always-available fallback and the
// source for empty-input completions.
var (
	Genres = []string{
		"Lo-Fi", "Synthwave", "Indie Pop", "RnB",
		"Ambient", "Afrobeat", "House", "Trap",
	}
	Moods     = []string{"Dreamy", "Melancholic", "Energetic", "Cinematic", "Minimal", "Dark"}
	Languages = []string{"English", "Spanish", "Hindi", "French", "Japanese", "Korean", "German"}
	Artists   = []string{
		"Tom Misch", "FKJ", "Odesza", "Billie Eilish",
		"Hans Zimmer", "Daft Punk", "Bonobo", "Nujabes",
	}
)

// Suggestion fields.
const (
	FieldGenres    = "genres"
	FieldMoods     = "moods"
	FieldLanguages = "languages"
	FieldArtists   = "artists"
)

const maxSuggestions = 5

// SuggestRequest asks for completions for one prompt field.
type SuggestRequest struct {
	Field   string            `json:"field"`
	Input   string            `json:"input,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type suggestBridgeResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggest returns up to five completions for a prompt field. With
// non-empty input it asks the LLM bridge first and falls back to the
// static vocabulary when the bridge fails or returns nothing; bridge
// failures never surface to the caller.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) ([]string, error) {
	vocabulary, ok := vocabularyFor(req.Field)
	if !ok {
		return nil, maestro.Validationf("field", "unknown suggestion field %q", req.Field)
	}

	query := strings.TrimSpace(req.Input)
	if query != "" {
		var out suggestBridgeResponse
		if err := c.postJSON(ctx, "/v1/suggest", req, &out); err != nil {
			c.logger.Warn("suggestion bridge unavailable, using vocabulary",
				"field", req.Field, "error", err)
		} else if cleaned := cleanSuggestions(out.Suggestions); len(cleaned) > 0 {
			return cleaned, nil
		}
	}

	return filterVocabulary(vocabulary, query), nil
}

func vocabularyFor(field string) ([]string, bool) {
	switch field {
	case FieldGenres:
		return Genres, true
	case FieldMoods:
		return Moods, true
	case FieldLanguages:
		return Languages, true
	case FieldArtists:
		return Artists, true
	}
	return nil, false
}

func cleanSuggestions(raw []string) []string {
	out := make([]string, 0, maxSuggestions)
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// filterVocabulary returns vocabulary entries containing the query,
// case-insensitive. No matches falls back to the full list so the user
// always sees something to pick from.
func filterVocabulary(vocabulary []string, query string) []string {
	matches := vocabulary
	if query != "" {
		q := strings.ToLower(query)
		filtered := make([]string, 0, len(vocabulary))
		for _, item := range vocabulary {
			if strings.Contains(strings.ToLower(item), q) {
				filtered = append(filtered, item)
			}
		}
		if len(filtered) > 0 {
			matches = filtered
		}
	}
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	return matches
}
