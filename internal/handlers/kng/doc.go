// Package kng is the illustrative job-runner EDS handler: clients submit
// a job naming a whitelisted type, receive a collision-free id back, and
// can later query status, request a stop, or fetch a job's accumulated
// log -- the action set original_source/apps/knegd/kng.c implements
// beyond the single "start" action spec.md's distillation narrates.
//
// A job type is resolved on PATH and exec'd with KNEGD_ID, KNEGD_TYPE,
// and KNEGDP_<KEY> (one per caller-supplied param) in its environment.
// A background sweep escalates a job past its timeout from SIGTERM to
// SIGKILL, and Handler.Shutdown drives the same escalation across every
// job still owned by a worker at exit.
package kng
