package service

// Checkout states. REJECTED means nothing was written; COMMITTED_FAILED means the sale is durable
// but the receipt could not be produced.
const (
	StatePending         = "PENDING"
	StateStockValidated  = "STOCK_VALIDATED"
	StateCommitted       = "COMMITTED"
	StateDocumentEmitted = "DOCUMENT_EMITTED"
	StateRejected        = "REJECTED"
	StateCommittedFailed = "COMMITTED_FAILED"
)
