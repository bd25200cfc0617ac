// Package observability builds the process logger and owns the Prometheus
// collectors for the import pipeline, the web book scheduler and the prober.
package observability
