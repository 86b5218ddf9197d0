// Package daemonctl manages the supervisor's pidfile and dump file, the
// two ambient details original_source's apps/clid and apps/knegd carry
// that spec.md's distillation narrates only in passing.
package daemonctl
