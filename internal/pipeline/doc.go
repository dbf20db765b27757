// Package pipeline wires the annotation workers, the dispatcher and the
// corpus writer into prepare and annotate runs.
package pipeline
