package tracing

// Span attribute keys.
const (
	AttrBackend    = "store.backend"
	AttrCollection = "store.collection"
	AttrRecordID   = "store.record_id"
	AttrFound      = "store.found"
)

// SpanPrefixStore prefixes every store driver span.
const SpanPrefixStore = "store."
