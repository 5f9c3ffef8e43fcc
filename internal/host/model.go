// Package host is the boundary to the single-threaded application whose
// live model the control plane queries. The reference model here backs the
// demo command and the tests; a real embedding supplies its own Model.
package host

import (
	"sort"
	"strings"
	"sync"
)

// FamilyInstance is one placed element in a document.
type FamilyInstance struct {
	Category  string
	Family    string
	Type      string
	UniqueID  string
	NumericID int64
}

// Workset is one named collaboration partition of a document.
type Workset struct {
	Name         string
	Kind         string
	ElementCount int
}

// Document is one resource owned by an instance.
type Document struct {
	Title     string
	Path      string
	Instances []FamilyInstance
	Worksets  []Workset
}

// ElementFilter narrows element queries; empty fields match everything.
// Matching is case-insensitive substring, the way pickers filter.
type ElementFilter struct {
	Category string `json:"category,omitempty"`
	Family   string `json:"family,omitempty"`
	Type     string `json:"type,omitempty"`
}

func (f ElementFilter) matches(inst FamilyInstance) bool {
	return containsFold(inst.Category, f.Category) &&
		containsFold(inst.Family, f.Family) &&
		containsFold(inst.Type, f.Type)
}

// Model is the in-memory reference model. Access is guarded so the demo
// host thread and test fixtures can share it, even though production
// embeddings only touch it from the host thread.
type Model struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewModel() *Model {
	return &Model{docs: make(map[string]*Document)}
}

func (m *Model) AddDocument(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := doc
	m.docs[doc.Title] = &copied
}

func (m *Model) RemoveDocument(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, title)
}

// Documents returns the titles and paths of every open document.
func (m *Model) Documents() []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, Document{Title: doc.Title, Path: doc.Path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// FamilyTypeCounts groups a document's instances by (category, family, type).
type FamilyTypeCount struct {
	Category string
	Family   string
	Type     string
	Count    int
}

func (m *Model) FamilyTypeCounts(title string) ([]FamilyTypeCount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[title]
	if !ok {
		return nil, false
	}
	counts := make(map[[3]string]int)
	for _, inst := range doc.Instances {
		counts[[3]string{inst.Category, inst.Family, inst.Type}]++
	}
	out := make([]FamilyTypeCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, FamilyTypeCount{Category: key[0], Family: key[1], Type: key[2], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.Type < b.Type
	})
	return out, true
}

// Elements returns instances matching any of the filters; no filters means
// every instance.
func (m *Model) Elements(title string, filters []ElementFilter) ([]FamilyInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[title]
	if !ok {
		return nil, false
	}
	var out []FamilyInstance
	for _, inst := range doc.Instances {
		if matchesAny(inst, filters) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out, true
}

// CategoryCounts groups a document's instances by category.
func (m *Model) CategoryCounts(title string) ([]FamilyTypeCount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[title]
	if !ok {
		return nil, false
	}
	counts := make(map[string]int)
	for _, inst := range doc.Instances {
		counts[inst.Category]++
	}
	out := make([]FamilyTypeCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, FamilyTypeCount{Category: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, true
}

func (m *Model) Worksets(title string) ([]Workset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[title]
	if !ok {
		return nil, false
	}
	out := make([]Workset, len(doc.Worksets))
	copy(out, doc.Worksets)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, true
}

func matchesAny(inst FamilyInstance, filters []ElementFilter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.matches(inst) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
