// Package check holds the metric model shared by the poller, the status store
// and the API: the structured Key (queue + Kind), the ordered Severity
// (ok < warning < critical), the Comparator and the immutable Check snapshot.
//
// CheckMetric is pure. With AtOrAbove a value equal to the threshold is
// alert-worthy; with Below (used for live workers) only values strictly under
// the threshold are.
package check
