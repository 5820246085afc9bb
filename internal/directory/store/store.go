// Package store holds the immutable bank/branch directory snapshot.
//
// A Directory is never mutated. After every successful backend round-trip the
// snapshot repository builds a new Directory from the full fetch and swaps it
// in, so lookups always see one consistent generation.
package store

import (
	"strings"

	"pollbank/internal/directory/models"
)

type Directory struct {
	banks    []models.Bank
	branches []models.Branch

	bankByID     map[string]int
	bankByName   map[string]int
	branchByID   map[string]int
	branchByCode map[string]int
}

// New indexes copies of banks and branches. When the backend holds duplicate
// natural keys the first occurrence wins.
func New(banks []models.Bank, branches []models.Branch) *Directory {
	d := &Directory{
		banks:        append([]models.Bank(nil), banks...),
		branches:     append([]models.Branch(nil), branches...),
		bankByID:     make(map[string]int, len(banks)),
		bankByName:   make(map[string]int, len(banks)),
		branchByID:   make(map[string]int, len(branches)),
		branchByCode: make(map[string]int, len(branches)),
	}
	for i, b := range d.banks {
		d.bankByID[b.ID] = i
		if _, ok := d.bankByName[nameKey(b.Name)]; !ok {
			d.bankByName[nameKey(b.Name)] = i
		}
	}
	for i, br := range d.branches {
		d.branchByID[br.ID] = i
		if _, ok := d.branchByCode[codeKey(br.RoutingCode)]; !ok {
			d.branchByCode[codeKey(br.RoutingCode)] = i
		}
	}
	return d
}

// Empty returns a directory with no entries.
func Empty() *Directory {
	return New(nil, nil)
}

func nameKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func codeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FindBranchByRoutingCode matches trimmed and case-insensitively.
func (d *Directory) FindBranchByRoutingCode(code string) (*models.Branch, bool) {
	i, ok := d.branchByCode[codeKey(code)]
	if !ok || codeKey(code) == "" {
		return nil, false
	}
	br := d.branches[i]
	return &br, true
}

// FindBankByName matches trimmed and case-insensitively.
func (d *Directory) FindBankByName(name string) (*models.Bank, bool) {
	i, ok := d.bankByName[nameKey(name)]
	if !ok || nameKey(name) == "" {
		return nil, false
	}
	b := d.banks[i]
	return &b, true
}

func (d *Directory) BankByID(id string) (*models.Bank, bool) {
	i, ok := d.bankByID[id]
	if !ok {
		return nil, false
	}
	b := d.banks[i]
	return &b, true
}

func (d *Directory) BranchByID(id string) (*models.Branch, bool) {
	i, ok := d.branchByID[id]
	if !ok {
		return nil, false
	}
	br := d.branches[i]
	return &br, true
}

// Banks returns a copy of all banks in backend order.
func (d *Directory) Banks() []models.Bank {
	return append([]models.Bank(nil), d.banks...)
}

// Branches returns a copy of all branches in backend order.
func (d *Directory) Branches() []models.Branch {
	return append([]models.Branch(nil), d.branches...)
}

// BankIDs lists every bank id, for identifier allocation.
func (d *Directory) BankIDs() []string {
	ids := make([]string, len(d.banks))
	for i, b := range d.banks {
		ids[i] = b.ID
	}
	return ids
}

// BranchIDs lists every branch id, for identifier allocation.
func (d *Directory) BranchIDs() []string {
	ids := make([]string, len(d.branches))
	for i, br := range d.branches {
		ids[i] = br.ID
	}
	return ids
}
