/*
Package metrics exposes fleetwork's Prometheus instrumentation and a small
generic component-health registry.

Counters and gauges here are grouped by the component that updates them:
the dispatcher (queue depth, handler latency, worker deaths), task lifecycle
(submitted/failed/duration), coordination primitives (registered count,
blocked waiters per kind), and the transport layer (bytes sent, failures by
kind). Handler serves them over HTTP via promhttp; HealthHandler/ReadyHandler/
LivenessHandler serve a small JSON health registry independent of Prometheus.
*/
package metrics
