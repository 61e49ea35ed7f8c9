package domain

// VerificationStatus classifies the outcome of comparing a computed
// digest against an advertised checksum. It is a value, not an error:
// Unavailable is a legitimate outcome when the index carries no
// checksum entry for a file.
type VerificationStatus int

const (
	// Unavailable means no checksum was advertised, so nothing could
	// be compared.
	Unavailable VerificationStatus = iota
	Verified
	Mismatch
)

func (s VerificationStatus) String() string {
	switch s {
	case Verified:
		return "verified"
	case Mismatch:
		return "mismatch"
	default:
		return "unavailable"
	}
}

// VerificationResult is the explicit result of a checksum comparison.
// Expected and Actual are populated for Verified and Mismatch.
type VerificationResult struct {
	Status   VerificationStatus
	Algo     Algo
	Expected string
	Actual   string
}
