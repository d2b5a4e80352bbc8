// Package model describes the plant topology the controller optimises over:
// thermal nodes, mode groups and the flow paths gated by those modes.
package model
