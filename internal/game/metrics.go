package game

import "github.com/prometheus/client_golang/prometheus"

// Счётчик игровых операций в дефолтном Prometheus-регистре.
// Outcome: "ok" либо "error" — детализация ошибок живёт в логах.
var opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rpg",
	Name:      "game_operations_total",
	Help:      "Общее число игровых операций по типу и результату.",
}, []string{"op", "outcome"})

func init() {
	prometheus.MustRegister(opsTotal)
}

func observeOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
}
