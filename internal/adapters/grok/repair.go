package grok

// repair.go — frontera de reparación near-JSON.
//
// Los modelos devuelven JSON envuelto en fences, con texto alrededor o con
// trailing commas. Aquí se repara lo reparable; lo que no, sale como
// ErrUnparseable y el caller lo trata como abstención. La respuesta cruda
// se persiste siempre, reparada o no.

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ErrUnparseable marca una respuesta del modelo que no se pudo reparar a
// JSON válido. Nunca resulta en trade.
var ErrUnparseable = errors.New("grok: unparseable model response")

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

type forecastPayload struct {
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
	Rationale   string   `json:"rationale"`
}

// parseForecast extrae un Forecast del texto del modelo, aplicando las
// reparaciones en orden: quitar fences, aislar el primer objeto JSON,
// limpiar trailing commas.
func parseForecast(raw string) (domain.Forecast, error) {
	candidate := stripFences(raw)
	candidate = isolateObject(candidate)
	if candidate == "" {
		return domain.Forecast{}, fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}
	candidate = trailingComma.ReplaceAllString(candidate, "$1")

	var p forecastPayload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return domain.Forecast{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if p.Probability == nil || p.Confidence == nil {
		return domain.Forecast{}, fmt.Errorf("%w: missing probability or confidence", ErrUnparseable)
	}

	return domain.Forecast{
		Probability: *p.Probability,
		Confidence:  *p.Confidence,
		Rationale:   strings.TrimSpace(p.Rationale),
	}, nil
}

// stripFences quita los code fences de markdown si los hay.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// isolateObject devuelve el primer objeto JSON balanceado del texto, o ""
// si no hay ninguno. Ignora llaves dentro de strings.
func isolateObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
