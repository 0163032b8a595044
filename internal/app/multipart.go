package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"symposium/api/internal/content"
	"symposium/api/internal/media"
	"symposium/api/internal/workflow"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 32 << 20

type publishInput struct {
	draft   content.Aggregate
	videos  map[content.Tier]workflow.Attachment
	closers []io.Closer
	form    *multipart.Form
}

type responseInput struct {
	response content.Response
	video    *workflow.Attachment
	closers  []io.Closer
	form     *multipart.Form
}

func (in *publishInput) cleanup()  { closeAll(in.closers, in.form) }
func (in *responseInput) cleanup() { closeAll(in.closers, in.form) }

func closeAll(closers []io.Closer, form *multipart.Form) {
	for _, c := range closers {
		_ = c.Close()
	}
	if form != nil {
		_ = form.RemoveAll()
	}
}

// readPublishInput accepts either a JSON aggregate or a multipart form with
// a "content" JSON field and optional hookVideo, mainVideo and fullVideo
// files. Fields missing from the JSON keep their compose defaults.
func (s *HTTPServer) readPublishInput(w http.ResponseWriter, r *http.Request) (*publishInput, error) {
	in := &publishInput{draft: content.NewDraft(), videos: map[content.Tier]workflow.Attachment{}}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if !isMultipart(r) {
		return in, decodeBody(r, &in.draft)
	}

	form, err := parseMultipart(r)
	if err != nil {
		return in, err
	}
	in.form = form
	if err := decodeField(form, "content", &in.draft); err != nil {
		return in, err
	}
	for _, tier := range content.Tiers {
		a, closer, err := attachmentFrom(form, string(tier)+"Video", string(tier)+"Duration")
		if err != nil {
			return in, err
		}
		if closer == nil {
			continue
		}
		in.closers = append(in.closers, closer)
		in.videos[tier] = a
	}
	return in, nil
}

// readResponseInput accepts a JSON response or a multipart form with a
// "response" JSON field and an optional "video" file.
func (s *HTTPServer) readResponseInput(w http.ResponseWriter, r *http.Request) (*responseInput, error) {
	in := &responseInput{response: content.NewResponse()}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if !isMultipart(r) {
		return in, decodeBody(r, &in.response)
	}

	form, err := parseMultipart(r)
	if err != nil {
		return in, err
	}
	in.form = form
	if err := decodeField(form, "response", &in.response); err != nil {
		return in, err
	}
	a, closer, err := attachmentFrom(form, "video", "duration")
	if err != nil {
		return in, err
	}
	if closer != nil {
		in.closers = append(in.closers, closer)
		in.video = &a
	}
	return in, nil
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, upload func(context.Context, media.Blob) (string, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if !isMultipart(r) {
		s.writeServiceError(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", "expected multipart/form-data with a file field", nil))
		return
	}
	form, err := parseMultipart(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer form.RemoveAll()

	headers := form.File["file"]
	if len(headers) == 0 {
		s.writeServiceError(w, r, missingField("file"))
		return
	}
	blob, file, err := blobFrom(headers[0])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer file.Close()

	url, err := upload(r.Context(), blob)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseMultipart(r *http.Request) (*multipart.Form, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, payloadTooLarge(tooLarge.Limit)
		}
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
	}
	return r.MultipartForm, nil
}

func decodeField(form *multipart.Form, field string, target any) error {
	values := form.Value[field]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return missingField(field)
	}
	if err := json.Unmarshal([]byte(values[0]), target); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid JSON in %s field", field), nil)
	}
	return nil
}

// attachmentFrom returns a nil closer when the form has no file for field.
func attachmentFrom(form *multipart.Form, field, durationField string) (workflow.Attachment, io.Closer, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return workflow.Attachment{}, nil, nil
	}
	duration := 0
	if values := form.Value[durationField]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(values[0]))
		if err != nil || parsed < 0 {
			return workflow.Attachment{}, nil, &content.ValidationError{Fields: []content.FieldError{{
				Field:   durationField,
				Message: durationField + " must be a non-negative number of seconds",
			}}}
		}
		duration = parsed
	}
	blob, file, err := blobFrom(headers[0])
	if err != nil {
		return workflow.Attachment{}, nil, err
	}
	return workflow.Attachment{Blob: blob, Duration: duration}, file, nil
}

func blobFrom(header *multipart.FileHeader) (media.Blob, multipart.File, error) {
	file, err := header.Open()
	if err != nil {
		return media.Blob{}, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "unreadable file part", nil)
	}
	return media.Blob{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	}, file, nil
}

func missingField(field string) error {
	return &content.ValidationError{Fields: []content.FieldError{{Field: field, Message: field + " is required"}}}
}
