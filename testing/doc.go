// Package testing provides simulated transports for exercising the voice
// pipeline under loss, reordering, and duplication without a network.
// Production code must not depend on this package.
package testing
