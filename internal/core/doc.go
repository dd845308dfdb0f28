// Package core defines the transport-independent request and response
// descriptors that flow through the gateway pipeline, together with the
// identity produced by authentication.
//
// A Request is constructed once by the transport adapter and treated as
// immutable by every pipeline stage; forwarding works on a Clone. The
// Response is produced by exactly one stage and handed back to the
// transport adapter.
package core
