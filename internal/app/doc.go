// Package app wires the configured components into runnable commands:
// training on one or more replicas, corpus preparation, and metric export.
package app
