package detector

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kaptinlin/jsonrepair"
)

const jsonScriptSelector = `script[type="application/json"],script[type="application/ld+json"]`

// jsonConfigValues walks the JSON script blocks of the page and returns the
// string values stored under any of keys, at any depth. Blocks are repaired
// before decoding since hand-written config often has single quotes, bare
// keys or trailing commas.
func jsonConfigValues(markup string, keys ...string) []string {
	if !strings.Contains(markup, "json") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	var out []string
	doc.Find(jsonScriptSelector).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			repaired, rerr := jsonrepair.JSONRepair(raw)
			if rerr != nil {
				return
			}
			if err := json.Unmarshal([]byte(repaired), &v); err != nil {
				return
			}
		}
		out = append(out, walkJSON(v, want)...)
	})
	return out
}

func walkJSON(v any, want map[string]struct{}) []string {
	var out []string
	switch t := v.(type) {
	case map[string]any:
		// sorted so repeated runs return ids in the same order
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := t[k]
			if s, ok := child.(string); ok {
				if _, hit := want[k]; hit {
					out = append(out, s)
				}
				continue
			}
			out = append(out, walkJSON(child, want)...)
		}
	case []any:
		for _, child := range t {
			out = append(out, walkJSON(child, want)...)
		}
	}
	return out
}
