package naming

import (
	"fmt"
	"sort"
	"sync"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

type claim struct {
	stem string
	ext  string
}

// NameSet holds the names assigned within one batch. Claimants of the same
// stem are ranked by page index: the lowest page gets the bare name, the
// next one "_2", and so on, whatever order the claims arrive in.
type NameSet struct {
	mu     sync.Mutex
	byStem map[string][]int // sorted page indexes
	claims map[int]claim
	closed bool
}

func NewNameSet() *NameSet {
	return &NameSet{
		byStem: make(map[string][]int),
		claims: make(map[int]claim),
	}
}

// Claim registers stem+ext for page and returns the name it currently maps to.
// Claiming again for the same page replaces the earlier claim.
func (s *NameSet) Claim(page int, stem, ext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("claim %q for page %d: %w", stem, page, common.ErrBatchClosed)
	}
	s.releaseLocked(page)
	pages := s.byStem[stem]
	i := sort.SearchInts(pages, page)
	pages = append(pages, 0)
	copy(pages[i+1:], pages[i:])
	pages[i] = page
	s.byStem[stem] = pages
	s.claims[page] = claim{stem: stem, ext: ext}
	return s.nameLocked(page), nil
}

// Release drops the claim of page, letting later pages move up.
func (s *NameSet) Release(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.releaseLocked(page)
}

func (s *NameSet) releaseLocked(page int) {
	c, ok := s.claims[page]
	if !ok {
		return
	}
	delete(s.claims, page)
	pages := s.byStem[c.stem]
	i := sort.SearchInts(pages, page)
	if i < len(pages) && pages[i] == page {
		pages = append(pages[:i], pages[i+1:]...)
	}
	if len(pages) == 0 {
		delete(s.byStem, c.stem)
		return
	}
	s.byStem[c.stem] = pages
}

// Lookup returns the current name of page.
func (s *NameSet) Lookup(page int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[page]; !ok {
		return "", false
	}
	return s.nameLocked(page), true
}

func (s *NameSet) nameLocked(page int) string {
	c := s.claims[page]
	rank := sort.SearchInts(s.byStem[c.stem], page)
	if rank == 0 {
		return c.stem + c.ext
	}
	return fmt.Sprintf("%s_%d%s", c.stem, rank+1, c.ext)
}

// Close freezes the set. Later claims fail and names never change again.
func (s *NameSet) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Freeze drops every claim whose page keep rejects, then closes the set in
// the same critical section so no claim can slip in between.
func (s *NameSet) Freeze(keep func(page int) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for page := range s.claims {
		if !keep(page) {
			s.releaseLocked(page)
		}
	}
	s.closed = true
}

// Closed reports whether Close was called.
func (s *NameSet) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len is the number of claimed pages.
func (s *NameSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}
