// Package api exposes the payroll HTTP surface: POST /api/runPayroll, the
// health probe, Prometheus metrics and an optional single-page frontend.
package api
