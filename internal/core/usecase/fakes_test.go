package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type docRepoFake struct {
	mu sync.Mutex

	docs map[string]*domain.Document

	createErr     error
	getErr        error
	listErr       error
	saveErr       error
	statusErr     error
	failStatusErr error
	tagErr        error

	statusCalls []statusCall
	saved       map[string]domain.ProcessedResult
	tagCalls    []string
	deleted     []string
}

func newDocRepoFake(docs ...domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:  make(map[string]*domain.Document),
		saved: make(map[string]domain.ProcessedResult),
	}
	for _, d := range docs {
		copyDoc := d.Clone()
		f.docs[d.ID] = &copyDoc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := doc.Clone()
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := doc.Clone()
	return &copyDoc, nil
}

func (f *docRepoFake) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *docRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *docRepoFake) ListPage(ctx context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error) {
	docs, err := f.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	if offset >= len(docs) {
		return []domain.Document{}, len(docs), nil
	}
	end := min(offset+filter.PageSize, len(docs))
	return docs[offset:end], len(docs), nil
}

func (f *docRepoFake) ListStale(_ context.Context, status domain.DocumentStatus, before time.Time, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.Status == status && doc.UpdatedAt.Before(before) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

func (f *docRepoFake) SaveProcessingResult(_ context.Context, id string, result domain.ProcessedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = result
	if doc, ok := f.docs[id]; ok {
		doc.Text = result.Text
		doc.Classification = result.Classification
		doc.Confidence = result.Confidence
		doc.Entities = result.Entities
		doc.Status = result.Status
	}
	return nil
}

func (f *docRepoFake) AddTag(_ context.Context, id, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagErr != nil {
		return f.tagErr
	}
	f.tagCalls = append(f.tagCalls, id+":"+tag)
	if doc, ok := f.docs[id]; ok {
		doc.AddTag(tag)
	}
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return domain.ErrDocumentNotFound
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *docRepoFake) tagCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tagCalls)
}

type ruleRepoFake struct {
	mu sync.Mutex

	rules   map[string]domain.WorkflowRule
	listErr error
	incErr  error
}

func newRuleRepoFake(rules ...domain.WorkflowRule) *ruleRepoFake {
	f := &ruleRepoFake{rules: make(map[string]domain.WorkflowRule)}
	for _, r := range rules {
		f.rules[r.ID] = r.Clone()
	}
	return f
}

func (f *ruleRepoFake) Create(_ context.Context, rule *domain.WorkflowRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule.Clone()
	return nil
}

func (f *ruleRepoFake) GetByID(_ context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, domain.ErrRuleNotFound
	}
	out := rule.Clone()
	return &out, nil
}

func (f *ruleRepoFake) List(_ context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.WorkflowRule, 0)
	for _, rule := range f.rules {
		if rule.OwnerID != ownerID {
			continue
		}
		if active != nil && rule.Active != *active {
			continue
		}
		out = append(out, rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *ruleRepoFake) ListActive(ctx context.Context, ownerID string) ([]domain.WorkflowRule, error) {
	active := true
	return f.List(ctx, ownerID, &active)
}

func (f *ruleRepoFake) Update(_ context.Context, rule *domain.WorkflowRule, active *bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.rules[rule.ID]
	if !ok || existing.OwnerID != rule.OwnerID {
		return domain.ErrRuleNotFound
	}
	next := rule.Clone()
	next.TriggerCount = existing.TriggerCount
	next.Active = existing.Active
	if active != nil {
		next.Active = *active
	}
	f.rules[rule.ID] = next
	return nil
}

func (f *ruleRepoFake) Toggle(_ context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, domain.ErrRuleNotFound
	}
	rule.Active = !rule.Active
	f.rules[id] = rule
	out := rule.Clone()
	return &out, nil
}

func (f *ruleRepoFake) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return domain.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *ruleRepoFake) IncrementTriggerCount(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return 0, f.incErr
	}
	rule, ok := f.rules[id]
	if !ok {
		return 0, domain.ErrRuleNotFound
	}
	rule.TriggerCount++
	f.rules[id] = rule
	return rule.TriggerCount, nil
}

func (f *ruleRepoFake) triggerCount(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[id].TriggerCount
}

type storageFake struct {
	mu sync.Mutex

	blobs   map[string]string
	saveErr error
	openErr error
	delErr  error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: make(map[string]string)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.blobs, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type dispatcherFake struct {
	mu     sync.Mutex
	events []domain.ActionEvent
	err    error
}

func (f *dispatcherFake) Dispatch(_ context.Context, event domain.ActionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}
