// Package cli parses the command line and dispatches to the app package.
package cli
