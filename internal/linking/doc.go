// Package linking implements the text side of keyword-to-link insertion:
// finding keyword occurrences, arbitrating between competing rules, and
// rewriting a body with link constructs.
//
// Everything here is pure and allocation-bounded by the input size. Offsets
// are byte offsets into the UTF-8 body and spans are half-open.
package linking
