// Package metrics holds the Prometheus collectors updated by the bot:
//
//	bot_orders_total{op,result}              order gateway calls (op: market|limit|stop_limit|cancel)
//	bot_position_events_total{event}         lifecycle transitions (opened|stop_loss_moved|take_profit_moved|closed|emergency_exit)
//	bot_emergency_exits_total{reason}        emergency exits by trigger
//	bot_watchdog_triggers_total{rule}        watchdog rules whose condition fired
//	bot_signals_total{signal}                signal evaluations (long|short|none)
//	bot_position_open                        1 while a position is held
//	bot_position_stop_loss / _take_profit    current protective prices
//	bot_ticks_total / bot_tick_duration_seconds  poll loop
//
// Collectors are registered in init and served at /metrics by the API server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Order gateway calls by operation and result",
		},
		[]string{"op", "result"},
	)

	PositionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_position_events_total",
			Help: "Position lifecycle events",
		},
		[]string{"event"},
	)

	EmergencyExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_emergency_exits_total",
			Help: "Emergency exits split by reason",
		},
		[]string{"reason"},
	)

	WatchdogTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_watchdog_triggers_total",
			Help: "Watchdog rule conditions that fired",
		},
		[]string{"rule"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Entry signal evaluations",
		},
		[]string{"signal"},
	)

	PositionOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_position_open",
			Help: "1 while a position is held, else 0",
		},
	)

	StopLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_position_stop_loss",
			Help: "Current stop-loss price of the open position",
		},
	)

	TakeProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_position_take_profit",
			Help: "Current take-profit price of the open position",
		},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Poll loop iterations by outcome (idle|candle|error)",
		},
		[]string{"outcome"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_tick_duration_seconds",
			Help:    "Time spent handling a new candle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(Orders, PositionEvents, EmergencyExits, WatchdogTriggers, Signals)
	prometheus.MustRegister(PositionOpen, StopLoss, TakeProfit)
	prometheus.MustRegister(Ticks, TickDuration)
}

// SetProtection publishes the protective prices; zero clears the position.
func SetProtection(sl, tp float64) {
	if sl == 0 && tp == 0 {
		PositionOpen.Set(0)
	} else {
		PositionOpen.Set(1)
	}
	StopLoss.Set(sl)
	TakeProfit.Set(tp)
}
