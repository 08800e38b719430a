// Package assets embeds the storefront stylesheet and the preview script
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetStorefrontCSS returns the storefront stylesheet
func GetStorefrontCSS() ([]byte, error) {
	return clientFS.ReadFile("client/storefront.css")
}

// GetPreviewJS returns the render surface script loaded in preview mode
func GetPreviewJS() ([]byte, error) {
	return clientFS.ReadFile("client/preview.js")
}
