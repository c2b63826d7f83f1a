package memory

import (
	"context"
	"fmt"
	"sync"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
)

type MemoryDocumentRepository struct {
	documents map[domain.DocumentID]*domain.Document
	mu        sync.RWMutex
}

func NewMemoryDocumentRepository() ports.DocumentRepository {
	return &MemoryDocumentRepository{
		documents: make(map[domain.DocumentID]*domain.Document),
	}
}

func (r *MemoryDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[doc.ID]; exists {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}

	copied := *doc
	r.documents[doc.ID] = &copied
	return nil
}

func (r *MemoryDocumentRepository) GetByID(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return nil, domain.ErrDocumentNotFound
	}

	copied := *doc
	return &copied, nil
}

func (r *MemoryDocumentRepository) Delete(ctx context.Context, id domain.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[id]; !exists {
		return domain.ErrDocumentNotFound
	}

	delete(r.documents, id)
	return nil
}
