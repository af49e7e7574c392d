package enums

// TransactionStatus tracks one provider payment attempt. Only PENDING may
// still change.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusSucceeded TransactionStatus = "SUCCEEDED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusExpired   TransactionStatus = "EXPIRED"
)

var transactionStatuses = newValueSet("transaction status",
	TransactionStatusPending, TransactionStatusSucceeded,
	TransactionStatusFailed, TransactionStatusExpired)

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) IsValid() bool { return transactionStatuses.has(s) }

func (s TransactionStatus) IsTerminal() bool {
	return s.IsValid() && s != TransactionStatusPending
}

func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return transactionStatuses.parse(value)
}
