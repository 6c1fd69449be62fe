// Package delivery sends one static direct message to an ordered list of
// recipients, one at a time, pacing between sends and accounting for each
// outcome.
package delivery
