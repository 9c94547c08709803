// Package batch implements the multipart framing used to bundle several
// OData operations into a single HTTP exchange.
//
// Requests are encoded with a Writer, either item by item or from a Batch
// describing the ordered items and changesets. The response of a batch
// exchange is decoded lazily by a BatchResponse: item status lines and headers
// are parsed as the stream is scanned, while item bodies are only streamed when
// the caller asks for them.
//
// All items of a BatchResponse share a single forward-only Cursor over the
// response body, so bodies must be consumed one at a time and in order.
// Advancing to the next item abandons whatever remains of the previous body.
package batch
