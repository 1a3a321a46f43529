package main

import "github.com/prometheus/client_golang/prometheus"

var (
	beginTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openid1_begin_total",
		Help: "Number of authentication attempts begun.",
	})

	completeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openid1_complete_total",
		Help: "Number of authentication attempts completed, by result.",
	}, []string{"result"})

	associateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openid1_associate_total",
		Help: "Number of association negotiations attempted, by outcome.",
	}, []string{"outcome"})
)

func registerMetrics(reg *prometheus.Registry) {
	reg.MustRegister(beginTotal, completeTotal, associateTotal)
}
