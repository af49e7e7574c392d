package momo

// Outcome is the settlement class of a provider result code.
type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// Result codes the provider documents as "not final yet".
const (
	CodeSuccess          = 0
	CodeInitiated        = 1000
	CodeProcessing       = 7000
	CodeProcessingByBank = 7002
	CodeAuthorized       = 9000
)

// Classify maps a provider result code onto a settlement outcome. Anything
// not known to be successful or in flight is treated as a definitive failure.
func Classify(resultCode int) Outcome {
	switch resultCode {
	case CodeSuccess:
		return OutcomeSettled
	case CodeInitiated, CodeProcessing, CodeProcessingByBank, CodeAuthorized:
		return OutcomePending
	default:
		return OutcomeFailed
	}
}
