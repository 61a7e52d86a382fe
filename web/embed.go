// Package web holds the dashboard templates and static assets compiled into
// the server binary.
package web

import "embed"

// TemplatesFS embeds the dashboard HTML templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds stylesheets served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
