// Package agent binds one payroll role (HR, Payroll or Employee) to one
// credential and exposes the payroll operations on top of a backend
// capability. Every backend-bound operation has a real path and a simulated
// fallback; callers see which one ran through the Outcome source tag.
package agent
