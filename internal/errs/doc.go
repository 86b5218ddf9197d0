// Package errs is used throughout this module instead of bare fmt.Errorf:
// every fallible operation that crosses a package boundary (frame codec
// errors, EDS transition failures, dnstres batch errors, REAPLAN connect
// errors) returns an errs.Error so callers can switch on Code rather than
// string-matching messages.
package errs
