package decide

import "log/slog"

type skipReason int

const (
	skipNone skipReason = iota
	skipBudget
	skipCooldown
	skipDailyCap
	skipDuplicate
	skipNoSignal
	skipUnparseable
	skipLowConfidence
	skipLowEdge
	skipError
)

// pipelineStats acumula los conteos de un ciclo de decisión para el log de
// cierre. No es thread-safe; el collector del pool es el único escritor.
type pipelineStats struct {
	evaluated     int
	budget        int
	cooldown      int
	dailyCap      int
	duplicate     int
	noSignal      int
	unparseable   int
	lowConfidence int
	lowEdge       int
	errors        int
	intents       int
}

func (s *pipelineStats) record(r skipReason) {
	s.evaluated++
	switch r {
	case skipNone:
		s.intents++
	case skipBudget:
		s.budget++
	case skipCooldown:
		s.cooldown++
	case skipDailyCap:
		s.dailyCap++
	case skipDuplicate:
		s.duplicate++
	case skipNoSignal:
		s.noSignal++
	case skipUnparseable:
		s.unparseable++
	case skipLowConfidence:
		s.lowConfidence++
	case skipLowEdge:
		s.lowEdge++
	case skipError:
		s.errors++
	}
}

func (s *pipelineStats) log(log *slog.Logger) {
	log.Info("decision cycle complete",
		"evaluated", s.evaluated,
		"intents", s.intents,
		"budget", s.budget,
		"cooldown", s.cooldown,
		"daily_cap", s.dailyCap,
		"duplicate", s.duplicate,
		"no_signal", s.noSignal,
		"unparseable", s.unparseable,
		"low_confidence", s.lowConfidence,
		"low_edge", s.lowEdge,
		"errors", s.errors)
}
