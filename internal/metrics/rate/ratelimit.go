package rate

import (
	"errors"
	"net/http"
	"strings"

	"fundingflow/logger"
)

// Limit classifies a failed fetch.
type Limit int

const (
	LimitNone Limit = iota
	LimitRate
	LimitBan
)

func (l Limit) String() string {
	switch l {
	case LimitRate:
		return "rate_limited"
	case LimitBan:
		return "ip_ban"
	default:
		return "none"
	}
}

// statusError is satisfied by the reader's HTTP status error.
type statusError interface {
	HTTPStatus() int
	Message() string
}

// ReportRateLimitExceeded increments the rate limit counter for the exchange.
func ReportRateLimitExceeded(log *logger.Log, exchange, host string) {
	l := log.WithComponent("ratelimit")
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"host":     host,
	}
	l.LogMetric("ratelimit", "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan increments the IP ban counter for the exchange.
func ReportIPBan(log *logger.Log, exchange, host string) {
	l := log.WithComponent("ratelimit")
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"host":     host,
	}
	l.LogMetric("ratelimit", "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// detectLimit inspects the message returned from an exchange and determines whether
// it signals a rate limit or an IP ban. Each exchange words these differently.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "code=-1003")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "kucoin":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "limit") && strings.Contains(lowerMsg, "triggered")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "mexc", "htx", "gateio":
		rateLimit = strings.Contains(lowerMsg, "too frequent") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "ban") || strings.Contains(lowerMsg, "forbidden"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// Classify maps a fetch error to a Limit using the HTTP status when one is
// available and the exchange's wording otherwise.
func Classify(exchange string, err error) Limit {
	if err == nil {
		return LimitNone
	}
	msg := err.Error()
	var se statusError
	if errors.As(err, &se) {
		switch se.HTTPStatus() {
		case http.StatusTooManyRequests:
			return LimitRate
		case http.StatusTeapot:
			// Binance answers 418 once an IP is auto-banned.
			return LimitBan
		}
		msg += " " + se.Message()
	}
	rateLimit, ipBan := detectLimit(exchange, msg)
	switch {
	case ipBan:
		return LimitBan
	case rateLimit:
		return LimitRate
	}
	return LimitNone
}

// ReportLimitFromError records a rate limit or ban metric when err signals
// one and returns the classification. No action is taken otherwise.
func ReportLimitFromError(log *logger.Log, exchange, host string, err error) Limit {
	limit := Classify(exchange, err)
	switch limit {
	case LimitRate:
		ReportRateLimitExceeded(log, exchange, host)
	case LimitBan:
		ReportIPBan(log, exchange, host)
	}
	return limit
}
