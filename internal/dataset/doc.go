// Package dataset defines the records that flow through the corpus
// pipeline: raw metadata lines, per-record metadata files and samples.
package dataset
