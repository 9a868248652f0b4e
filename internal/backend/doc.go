// Package backend defines the capability contract an agent uses to reach the
// blockchain / account-abstraction network, together with the result shapes
// shared by the real and the simulated implementations.
//
// Concrete backends live in sub-packages: ethereum talks to EVM compatible
// chains through go-ethereum, simulated synthesizes deterministic results and
// provider builds the configured backend from chain definitions.
package backend
