package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 10 << 20

// DefaultAllowedExtensions are the upload types accepted when none are
// configured.
var DefaultAllowedExtensions = []string{
	".pdf", ".png", ".jpg", ".jpeg", ".doc", ".docx", ".txt",
	".csv", ".html", ".md", ".xlsx",
}

var extensionMimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".md":   "text/markdown",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type IngestConfig struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
}

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	cfg     IngestConfig
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	cfg IngestConfig,
) *IngestDocumentUseCase {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		cfg:     cfg,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	ownerID, filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", errors.New("owner is required"))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(uc.cfg.AllowedExtensions, ext) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file type %q not allowed", ext))
	}

	content, err := io.ReadAll(io.LimitReader(body, uc.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(content)) > uc.cfg.MaxUploadBytes {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"upload document",
			fmt.Errorf("file exceeds %d bytes", uc.cfg.MaxUploadBytes),
		)
	}
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", sanitizeFilename(ownerID), id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		MimeType:    resolveMimeType(mimeType, ext),
		FileSize:    int64(len(content)),
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		Entities:    []domain.Entity{},
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	return doc, nil
}

// Reprocess resets a document to uploaded and queues it again.
func (uc *IngestDocumentUseCase) Reprocess(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetForOwner(ctx, ownerID, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		return nil, domain.WrapError(domain.ErrConflict, "reprocess document", errors.New("document is being processed"))
	}
	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusUploaded, ""); err != nil {
		return nil, fmt.Errorf("reset document status: %w", err)
	}
	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}
	doc.Status = domain.StatusUploaded
	doc.Error = ""
	return doc, nil
}

// resolveMimeType trusts the client type unless it is missing or generic.
func resolveMimeType(declared, ext string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if mt, ok := extensionMimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
