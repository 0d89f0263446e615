package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genai-demos/internal/app"
	"genai-demos/internal/documents"
	"genai-demos/internal/httputil"
	"genai-demos/internal/llm"
)

// uploadHandler accepts one of:
//   - "pages": pre-rasterized page images of one document, extracted in order
//   - "file": a single image (extracted), PDF (text layer), or text file
//   - "text": markdown typed by the user
//
// The optional "name" field names the output; it defaults to the file name.
func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("upload too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize)
		if err := r.ParseMultipartForm(maxFileSize); err != nil {
			httputil.Fail(deps.Log, w, "multipart form is required", err, http.StatusBadRequest)
			return
		}
		opts := llm.Options{Model: r.FormValue("model")}
		name := strings.TrimSpace(r.FormValue("name"))

		var (
			out documents.Ingested
			err error
		)
		switch {
		case len(r.MultipartForm.File["pages"]) > 0:
			headers := r.MultipartForm.File["pages"]
			if name == "" {
				name = documents.BaseName(headers[0].Filename)
			}
			pages := make([][]byte, 0, len(headers))
			for _, h := range headers {
				data, readErr := readPart(h)
				if readErr != nil {
					httputil.Fail(deps.Log, w, "failed to read page", readErr, http.StatusBadRequest)
					return
				}
				pages = append(pages, data)
			}
			out, err = deps.Ingestor.IngestPages(ctx, name, pages, opts)

		case len(r.MultipartForm.File["file"]) > 0:
			header := r.MultipartForm.File["file"][0]
			if name == "" {
				name = documents.BaseName(header.Filename)
			}
			data, readErr := readPart(header)
			if readErr != nil {
				httputil.Fail(deps.Log, w, "failed to read file", readErr, http.StatusBadRequest)
				return
			}
			switch documents.Kind(data) {
			case "image":
				out, err = deps.Ingestor.IngestImage(ctx, name, data, opts)
			case "pdf":
				out, err = deps.Ingestor.IngestPDFText(name, data)
			case "text":
				out, err = deps.Ingestor.IngestText(name, string(data))
			default:
				err = fmt.Errorf("%w (only images, PDF and text are accepted)", documents.ErrUnsupportedType)
			}

		case r.FormValue("text") != "":
			if name == "" {
				httputil.Fail(deps.Log, w, "name is required for text uploads", nil, http.StatusBadRequest)
				return
			}
			out, err = deps.Ingestor.IngestText(name, r.FormValue("text"))

		default:
			httputil.Fail(deps.Log, w, "file, pages or text is required", nil, http.StatusBadRequest)
			return
		}

		if err != nil {
			var extractErr *documents.ExtractionError
			if errors.As(err, &extractErr) {
				httputil.Fail(deps.Log, w, "extraction failed", err, http.StatusBadGateway)
				return
			}
			httputil.Fail(deps.Log, w, "failed to ingest document", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, out)
	}
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Library.List()
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": files})
	}
}

func getDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		content, err := deps.Library.Load(name)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load document", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"name": name, "content": content})
	}
}
