package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmon",
	Subsystem: "alert",
	Name:      "notifications_total",
	Help:      "Notification delivery outcomes by channel and result.",
}, []string{"channel", "result"})
