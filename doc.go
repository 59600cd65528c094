// Package newscore is the news-ingestion core of the crypto trading
// multi-agent system. It pulls articles from heterogeneous external news
// sources through a uniform adapter abstraction while protecting each source
// from overload, detecting source degradation, and classifying and recovering
// from transient failures.
//
// The core is organized as:
//
//   - pkg/ratelimit: per-source token-bucket admission control
//   - pkg/errors: structured error taxonomy with severity and retry guidance
//   - pkg/adapter: the SourceAdapter abstraction, base implementation, and
//     the factory registry, with concrete adapters under pkg/adapter/rss,
//     pkg/adapter/newsapi, and pkg/adapter/cryptopanic
//   - pkg/tracker: per-source connection and activity statistics
//   - pkg/health: periodic health probing, health state machine, and alerting
//   - internal/core: the composition root exposing fetch/search/status
//     operations to the collector agents
//
// Article persistence, collection scheduling, and language-model invocation
// are owned by other agents in the system; this module only delivers
// articles, per-source status, and alerts to its callers.
package newscore
