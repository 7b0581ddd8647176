package mapview

import (
	"bytes"
	"html/template"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/adampresley/photomap/internal/configuration"
	"github.com/adampresley/photomap/cmd/photomap/internal/viewmodels"
)

func newStaticHandler(config *configuration.Config) http.Handler {
	if config == nil || config.StaticDirectory == "" {
		return http.NotFoundHandler()
	}

	return http.FileServer(&templateDir{
		config: config,
		data: viewmodels.Page{
			GoogleMapsApiKey: config.GoogleMapsAPIKey,
		},
	})
}

/*
templateDir serves the static directory, executing .html files as
templates with data.
*/
type templateDir struct {
	config *configuration.Config
	data   viewmodels.Page
}

func (td *templateDir) Open(name string) (http.File, error) {
	var (
		err  error
		path string
		f    *os.File
		src  []byte
		tmpl *template.Template
	)

	if path, err = td.config.SanitizePath(name); err != nil {
		return nil, os.ErrNotExist
	}

	if f, err = os.Open(path); err != nil {
		return nil, err
	}

	if !strings.HasSuffix(name, ".html") {
		return f, nil
	}

	if src, err = io.ReadAll(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	if tmpl, err = template.New(name).Parse(string(src)); err != nil {
		_ = f.Close()
		return nil, err
	}

	buf := &bytes.Buffer{}

	if err = tmpl.Execute(buf, td.data); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &templateFile{File: f, r: bytes.NewReader(buf.Bytes()), size: int64(buf.Len())}, nil
}

/*
templateFile replaces the content of a file with its executed template.
*/
type templateFile struct {
	*os.File
	r    *bytes.Reader
	size int64
}

func (f *templateFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *templateFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *templateFile) Stat() (os.FileInfo, error) {
	fi, err := f.File.Stat()
	if err != nil {
		return nil, err
	}

	return sizedFileInfo{FileInfo: fi, size: f.size}, nil
}

type sizedFileInfo struct {
	os.FileInfo
	size int64
}

func (fi sizedFileInfo) Size() int64 {
	return fi.size
}
