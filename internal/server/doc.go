// Package server hosts the Fiber HTTP service, the request middleware chain
// and the origin table that decides whether a request is same-origin content
// (classified and served through the caching strategies) or a cross-origin
// request passed through untouched. Control routes live under /-/ and are
// registered by the routes subpackage.
package server
