package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_requests_total",
		Help: "Total number of requests to the AI provider by model and outcome.",
	}, []string{"model", "status"})

	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_request_duration_seconds",
		Help:    "Duration of AI provider requests in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	aiPromptTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_prompt_tokens",
		Help:    "Prompt token counts reported or estimated per AI request.",
		Buckets: prometheus.ExponentialBuckets(16, 2, 12),
	}, []string{"model"})

	aiCompletionTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_completion_tokens",
		Help:    "Completion token counts reported or estimated per AI request.",
		Buckets: prometheus.ExponentialBuckets(16, 2, 12),
	}, []string{"model"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generations_total",
		Help: "Completed generations recorded in history, by tool kind.",
	}, []string{"kind"})
)

func observeTokens(model string, usage UsageInfo) {
	if usage.TotalTokens == 0 {
		return
	}
	aiPromptTokens.WithLabelValues(model).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.WithLabelValues(model).Observe(float64(usage.CompletionTokens))
}
