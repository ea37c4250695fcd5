// Package http implements the HTTP handlers for the hospital
// administration backend. Handlers stay thin: they parse and validate
// requests, delegate to the service layer and translate service errors
// into RFC 7807 problem details.
package http
