// Package sanitizer normalizes free-form rule input before validation.
//
// Every function is idempotent and never fails: invalid input degrades to an
// empty value and is left for the validator to reject.
package sanitizer
