package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LedgerMetrics counts wallet effects by transaction type.
type LedgerMetrics struct {
	effects *prometheus.CounterVec
	amount  *prometheus.CounterVec
	denied  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_effects_total",
		Help: "Wallet ledger effects applied.",
	}, []string{"type"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_effect_amount_abs_total",
		Help: "Absolute amount moved by wallet ledger effects.",
	}, []string{"type"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_effects_denied_total",
		Help: "Guarded wallet effects rejected for insufficient balance.",
	}, []string{"type"})
	reg.MustRegister(effects, amount, denied)
	return &LedgerMetrics{effects: effects, amount: amount, denied: denied}
}

// ObserveEffect records one applied effect.
func (l *LedgerMetrics) ObserveEffect(txType string, delta decimal.Decimal) {
	if l == nil || l.effects == nil {
		return
	}
	label := normalizeLabel(txType)
	l.effects.WithLabelValues(label).Inc()
	l.amount.WithLabelValues(label).Add(delta.Abs().InexactFloat64())
}

// IncDenied records a guarded effect that would have overdrawn the wallet.
func (l *LedgerMetrics) IncDenied(txType string) {
	if l == nil || l.denied == nil {
		return
	}
	l.denied.WithLabelValues(normalizeLabel(txType)).Inc()
}
