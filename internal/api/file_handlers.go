package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"securesend/internal/models"
	"securesend/internal/service"

	"github.com/go-chi/chi/v5"
)

const uploadField = "file"

type FileResponse struct {
	ID                string     `json:"id" example:"V1StGXR8_Z5jdHi6B-myT"`
	OriginalName      string     `json:"original_name" example:"report.pdf"`
	SizeBytes         int64      `json:"size_bytes" example:"48213"`
	MimeType          string     `json:"mime_type" example:"application/pdf"`
	HasActiveLink     bool       `json:"has_active_link"`
	DownloadExpiresAt *time.Time `json:"download_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type UploadResponse struct {
	Msg  string       `json:"msg" example:"File uploaded and encrypted successfully."`
	File FileResponse `json:"file"`
}

type LinkResponse struct {
	Link      string    `json:"link" example:"https://localhost/api/v1/files/download/Q0C2bn1mYp8QzW7x3R9kT4vL6sJ8aE1d"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toFileResponse(f models.StoredFile, now time.Time) FileResponse {
	return FileResponse{
		ID:                f.ID,
		OriginalName:      f.OriginalName,
		SizeBytes:         f.SizeBytes,
		MimeType:          f.MimeType,
		HasActiveLink:     f.DownloadToken != nil && f.DownloadExpiresAt != nil && f.DownloadExpiresAt.After(now),
		DownloadExpiresAt: f.DownloadExpiresAt,
		CreatedAt:         f.CreatedAt,
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// @Summary      Upload a file
// @Description  Checks size against the caller's tier, the type allow-list and the virus scanner, then stores the file encrypted.
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "File to upload"
// @Success      201   {object}  UploadResponse
// @Failure      400   {object}  ErrorResponse  "No file, too large, wrong type or infected"
// @Failure      401   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /files/upload [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipalFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	// Parts beyond 32 MB spill to temp files; RemoveAll deletes them on every path.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, service.ErrFileTooLarge)
			return
		}
		writeError(w, service.ErrNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, service.ErrNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, service.ErrNoFile)
		return
	}

	stored, err := s.files.Upload(r.Context(), principal, header.Filename, header.Header.Get("Content-Type"), data, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Msg:  "File uploaded and encrypted successfully.",
		File: toFileResponse(*stored, s.now()),
	})
}

// @Summary      List my files
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   FileResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /files [get]
func (s *Server) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List(r.Context(), GetPrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	now := s.now()
	response := make([]FileResponse, 0, len(files))
	for _, f := range files {
		response = append(response, toFileResponse(f, now))
	}
	writeJSON(w, http.StatusOK, response)
}

// @Summary      Generate a one-time download link
// @Description  Replaces any previous link of the file. The link works once and expires after 24 hours.
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        fileId  path      string  true  "File ID"
// @Success      200     {object}  LinkResponse
// @Failure      401     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /files/{fileId}/link [post]
func (s *Server) GenerateLinkHandler(w http.ResponseWriter, r *http.Request) {
	link, err := s.files.GenerateLink(r.Context(), GetPrincipalFromContext(r.Context()), chi.URLParam(r, "fileId"), requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{
		Link:      fmt.Sprintf("%s/api/v1/files/download/%s", baseURL(r), link.Token),
		ExpiresAt: link.ExpiresAt,
	})
}

// @Summary      Download through a one-time link
// @Description  Decrypts and streams the file, then deletes it. A second request with the same token fails.
// @Tags         files
// @Produce      octet-stream
// @Param        token  path      string  true  "Download token"
// @Success      200    {file}    file
// @Failure      404    {object}  ErrorResponse
// @Failure      500    {object}  ErrorResponse
// @Router       /files/download/{token} [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	started := false
	err := s.files.Download(r.Context(), chi.URLParam(r, "token"), requestMeta(r), func(file *models.StoredFile, data []byte) error {
		w.Header().Set("Content-Type", file.MimeType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalName}))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "no-store")
		started = true
		_, err := w.Write(data)
		return err
	})
	if err != nil && !started {
		writeError(w, err)
	}
}
