// Package license implements the license generation, codec and validation
// core for the hospital staff-administration backend.
//
// A license is a JSON payload (institution, validity, allowed domain,
// feature flags) signed with HMAC-SHA256 and encrypted with AES-256-CBC
// into an opaque .license file. The Generator produces these files offline;
// the Validator decrypts an uploaded file, verifies its signature and
// policy, and yields a Decision the server persists through the Store.
//
// Both sides share a single symmetric secret, injected through the Codec
// constructor and never held as a package-level constant.
package license
