package filter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/psu6810110402/gemini-foundry/internal/config"
)

// SanitizeConfig is an alias of config.SanitizeConfig.
type SanitizeConfig = config.SanitizeConfig

// Sanitizer redacts secrets from request data before it is logged.
type Sanitizer struct {
	headers     map[string]struct{}
	fields      map[string]struct{}
	replacement string
}

func NewSanitizer(cfg SanitizeConfig) *Sanitizer {
	return &Sanitizer{
		headers:     toLowerSet(cfg.Headers),
		fields:      toLowerSet(cfg.BodyFields),
		replacement: cfg.Replacement,
	}
}

// Headers flattens h with sensitive values replaced.
func (s *Sanitizer) Headers(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if _, ok := s.headers[strings.ToLower(k)]; ok {
			out[k] = s.replacement
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// Body redacts configured fields of a JSON body at any depth. Non-JSON
// bodies are returned unchanged.
func (s *Sanitizer) Body(body string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	v = s.jsonValue(v)
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return string(out)
}

func (s *Sanitizer) jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			if _, ok := s.fields[strings.ToLower(k)]; ok {
				val[k] = s.replacement
				continue
			}
			val[k] = s.jsonValue(v2)
		}
		return val
	case []interface{}:
		for i := range val {
			val[i] = s.jsonValue(val[i])
		}
		return val
	default:
		return val
	}
}

// Mask keeps the first and last visible characters of a secret, e.g.
// "AIza****************wxyz".
func Mask(secret string, visible int) string {
	r := []rune(secret)
	if len(r) <= visible*2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:visible]) + strings.Repeat("*", len(r)-visible*2) + string(r[len(r)-visible:])
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
