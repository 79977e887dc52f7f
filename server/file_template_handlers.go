package server

import (
	"embed"
	"html/template"
	"io/fs"

	"github.com/pkg/errors"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).ParseFS(TemplateFilesFS(), name)
	if err != nil {
		return nil, errors.Wrapf(err, "[ParseTemplate] %s", name)
	}
	return tmpl, nil
}
