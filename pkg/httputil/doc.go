// Package httputil provides the JSON request and response helpers and the
// middleware chain shared by every HTTP surface.
package httputil
