// Package performance records timed outcomes of guarded operations tagged by
// backend variant, computes windowed statistics (nearest-rank percentiles,
// error rates), compares variants against fixed adoption thresholds, and
// flushes aggregates to a pluggable metrics sink in bounded batches.
package performance
