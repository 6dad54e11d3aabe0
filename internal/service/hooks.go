package service

import "time"

// Result labels passed to MetricHooks.
const (
	MediaResolved = "resolved"
	MediaNone     = "none"
	MediaFailed   = "failed"

	PromotionPromoted    = "promoted"
	PromotionFailed      = "failed"
	PromotionEmpty       = "empty"
	PromotionUncommitted = "uncommitted"
)

// MetricHooks are optional observation callbacks. Keeping them as plain
// funcs lets the service stay free of any metrics import; nil fields are
// skipped.
type MetricHooks struct {
	OnRegistered    func()
	OnPublishFailed func()
	OnMedia         func(result string)
	OnPromotion     func(result string, latency time.Duration)
	OnPending       func(n int)
}

func (h MetricHooks) registered() {
	if h.OnRegistered != nil {
		h.OnRegistered()
	}
}

func (h MetricHooks) publishFailed() {
	if h.OnPublishFailed != nil {
		h.OnPublishFailed()
	}
}

func (h MetricHooks) media(result string) {
	if h.OnMedia != nil {
		h.OnMedia(result)
	}
}

func (h MetricHooks) promotion(result string, latency time.Duration) {
	if h.OnPromotion != nil {
		h.OnPromotion(result, latency)
	}
}

func (h MetricHooks) pending(n int) {
	if h.OnPending != nil {
		h.OnPending(n)
	}
}
