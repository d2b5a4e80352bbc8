// Package forecast provides the per-step exogenous inputs of a horizon:
// demands, ambient temperature, energy price and the freeze flags that
// decide whether the coarse band is built.
package forecast
