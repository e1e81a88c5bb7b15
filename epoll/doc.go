// Package epoll exposes the Linux epoll readiness-notification facility.
//
// A caller creates an [Instance], registers descriptors with a [Set] of
// readiness conditions of interest, and blocks in [Instance.Wait] until some
// become ready. Conditions travel through the package as [Set] values and are
// translated to and from the kernel bitmask by [Encode] and [Decode].
//
// The package keeps no registration state of its own. The kernel context is
// the only record of which descriptors are registered, so closing a
// descriptor elsewhere is reflected immediately and never drifts from a local
// table. Every method of an Instance may be called from multiple goroutines at
// once; concurrent waiters on the same Instance run in parallel.
//
// A blocked Wait returns on readiness, timeout or an error. To wake it early,
// register a [Waker] and call [Waker.Wake].
package epoll
