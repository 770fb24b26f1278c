// Package httpapi exposes the credkit engine over JSON/HTTP. Handlers only
// decode requests, call the engine and encode results; error kinds map to
// status codes through credkit.Kind.HTTPStatus.
package httpapi
