// Package handler contains the HTTP request handlers for the task API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path values, query params, JSON body)
//  2. Call the service layer with the caller's identity from the context
//  3. Write the response through a Responder (status, headers, JSON body)
//
// Handlers hold no business rules; validation and ownership live in the
// service and repository layers.
package handler
