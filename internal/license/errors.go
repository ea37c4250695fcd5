package license

import "errors"

// Sentinel errors for license operations. Validation errors are recoverable
// at the request level; the host keeps running in an unlicensed state.
var (
	// ErrEncryptionFailed signals a failure while producing ciphertext.
	ErrEncryptionFailed = errors.New("license encryption failed")

	// ErrDecryptionFailed signals corrupted ciphertext, a wrong key, or a
	// padding error. Treated as "invalid or corrupted license file".
	ErrDecryptionFailed = errors.New("license decryption failed")

	// ErrMalformedPayload signals plaintext that is not valid JSON or is
	// missing required fields.
	ErrMalformedPayload = errors.New("malformed license payload")

	// ErrSignatureInvalid signals a cryptographic integrity failure, a
	// tampered or foreign license. Logged distinctly as a security event.
	ErrSignatureInvalid = errors.New("license signature invalid")

	// ErrLicenseExpired signals a license past its valid_until date.
	ErrLicenseExpired = errors.New("license expired")

	// ErrDomainMismatch signals a license bound to a different domain.
	ErrDomainMismatch = errors.New("license domain mismatch")

	// ErrNotActivated signals that no activation state is persisted.
	ErrNotActivated = errors.New("license not activated")
)

// Generator input errors. These are fatal to a generator run.
var (
	ErrInvalidLicenseType = errors.New("invalid license type selection")
	ErrInvalidCustomDate  = errors.New("custom date must match YYYY-MM-DD")
	ErrEmptyInstitution   = errors.New("institution name is required")
)
