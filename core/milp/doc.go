// Package milp holds the solver-independent symbolic model: typed variables,
// sparse linear constraints and a component-wise objective. Models are built
// append-only through a *Model passed to every sub-model constructor and are
// consumed by the solver backends in core/solver and infra/cbc.
package milp
