// telemetry traces the steps of a deployment and derives metrics from the finished spans.
// Supported metrics includes:
// - rps(*_started_total)
// - success/error count(*_handled_total)
// - latency histogram(*_handling_seconds_bucket)
//
// Metrics are pushed to a Prometheus pushgateway at the end of a run, as a CLI
// process does not live long enough to be scraped.
package telemetry
