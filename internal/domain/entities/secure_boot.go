package entities

// SecureBootState is the firmware Secure Boot mode
type SecureBootState string

const (
	SecureBootEnabled     SecureBootState = "enabled"
	SecureBootDisabled    SecureBootState = "disabled"
	SecureBootUnsupported SecureBootState = "unsupported"
	SecureBootUnknown     SecureBootState = "unknown"
)

// SecureBootReport tells the operator whether DKMS built modules will load
type SecureBootReport struct {
	State       SecureBootState
	KeyPath     string
	KeyEnrolled bool
}

// NeedsEnrollment reports whether modules signed with the DKMS key will be rejected
func (r SecureBootReport) NeedsEnrollment() bool {
	return r.State == SecureBootEnabled && !r.KeyEnrolled
}
