// Package pollset implements a portable readiness-notification engine
// modeled on Solaris event ports: a PollSet owns a pluggable backend
// handle, a pre-sized result buffer, and four intrusive rings (query, add,
// free, dead) of descriptor records that let Add/Remove/Poll run
// concurrently without reallocating.
//
// The primary, fully-specified backend wraps Solaris/illumos event ports
// (port_create/port_associate/port_dissociate/port_getn). Linux (epoll)
// and Darwin (kqueue) backends are also provided, demonstrating that the
// ring discipline and public API are independent of the underlying
// notification primitive; both alternate backends arm each descriptor
// one-shot so re-arming on the next Poll matches the add/query ring
// handoff the Solaris backend performs natively.
//
// See SPEC_FULL.md and DESIGN.md at the repository root for the full
// specification this package implements and its grounding in the corpus.
package pollset
