package event

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Value pools for synthetic events.
var (
	userActions      = []string{"click", "view", "purchase", "login", "logout", "search"}
	transactionTypes = []string{"payment", "refund", "transfer", "withdrawal"}
	metricNames      = []string{"cpu_usage", "memory_usage", "disk_io", "network_latency"}
	systemEvents     = []string{"startup", "shutdown", "error", "warning", "info"}

	devices            = []string{"mobile", "desktop", "tablet"}
	browsers           = []string{"chrome", "firefox", "safari", "edge"}
	currencies         = []string{"USD", "EUR", "GBP"}
	transactionStatus  = []string{"completed", "pending", "failed"}
	metricUnits        = []string{"percent", "ms", "bytes", "count"}
	regions            = []string{"us-east-1", "us-west-2", "eu-west-1"}
	services           = []string{"api", "database", "cache", "queue"}
	severities         = []string{"low", "medium", "high", "critical"}
)

// Generator produces synthetic domain events. Not safe for concurrent
// use; each publisher loop owns its own Generator.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a Generator backed by a fresh PCG source.
func NewGenerator() *Generator {
	return &Generator{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
}

// Generate produces one event of a uniformly random kind, stamped with
// a fresh event id and the current UTC timestamp.
func (g *Generator) Generate() Event {
	t := Types[g.rnd.IntN(len(Types))]

	var data any
	switch t {
	case TypeUserAction:
		data = g.userAction()
	case TypeTransaction:
		data = g.transaction()
	case TypeMetric:
		data = g.metric()
	default:
		data = g.systemEvent()
	}

	return Event{
		EventID:   uuid.NewString(),
		EventType: t,
		Timestamp: FormatTimestamp(g.now()),
		Data:      data,
	}
}

func (g *Generator) userAction() UserAction {
	return UserAction{
		UserID:          fmt.Sprintf("user_%d", g.intBetween(1000, 9999)),
		Action:          g.choice(userActions),
		Page:            fmt.Sprintf("/page/%d", g.intBetween(1, 10)),
		SessionDuration: g.intBetween(10, 3600),
		Device:          g.choice(devices),
		Browser:         g.choice(browsers),
	}
}

func (g *Generator) transaction() Transaction {
	return Transaction{
		TransactionID: uuid.NewString(),
		UserID:        fmt.Sprintf("user_%d", g.intBetween(1000, 9999)),
		Type:          g.choice(transactionTypes),
		Amount:        round2(1 + g.rnd.Float64()*4999),
		Currency:      g.choice(currencies),
		Status:        g.choice(transactionStatus),
		Merchant:      fmt.Sprintf("merchant_%d", g.intBetween(1, 100)),
	}
}

func (g *Generator) metric() Metric {
	return Metric{
		MetricName: g.choice(metricNames),
		Value:      round2(g.rnd.Float64() * 100),
		Unit:       g.choice(metricUnits),
		Host:       fmt.Sprintf("host-%d", g.intBetween(1, 50)),
		Region:     g.choice(regions),
	}
}

func (g *Generator) systemEvent() SystemEvent {
	return SystemEvent{
		EventName: g.choice(systemEvents),
		Service:   g.choice(services),
		Message:   fmt.Sprintf("System event occurred at %s", FormatTimestamp(g.now())),
		Severity:  g.choice(severities),
		Host:      fmt.Sprintf("host-%d", g.intBetween(1, 50)),
	}
}

func (g *Generator) choice(pool []string) string {
	return pool[g.rnd.IntN(len(pool))]
}

// intBetween returns a uniform int in [lo, hi].
func (g *Generator) intBetween(lo, hi int) int {
	return lo + g.rnd.IntN(hi-lo+1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
