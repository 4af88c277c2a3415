// Package api exposes the generation and review services over HTTP. It
// decodes and validates requests, takes the user from the authenticated
// context and maps service errors onto status codes without leaking their
// details.
package api
