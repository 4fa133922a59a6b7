// Package fixtures loads seed data (branches, books, copies and borrowers)
// from a YAML file into the catalog and borrower tables.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrlokans/librapp/internal/database/borrowers"
	"github.com/mrlokans/librapp/internal/entities"
)

type Fixtures struct {
	Branches  []Branch   `yaml:"branches"`
	Books     []Book     `yaml:"books"`
	Borrowers []Borrower `yaml:"borrowers"`
}

type Branch struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Book lists its authors by name and its copies by branch name.
type Book struct {
	ISBN     string         `yaml:"isbn"`
	Title    string         `yaml:"title"`
	CoverURL string         `yaml:"cover_url"`
	Authors  []string       `yaml:"authors"`
	Copies   map[string]int `yaml:"copies"`
}

type Borrower struct {
	SSN       string `yaml:"ssn"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Address   string `yaml:"address"`
	Phone     string `yaml:"phone"`
	Email     string `yaml:"email"`
}

// Load reads a fixtures file from disk.
func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and checks references between sections.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures YAML: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixtures) validate() error {
	branches := make(map[string]bool, len(f.Branches))
	for i, b := range f.Branches {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("branch %d: name is required", i+1)
		}
		branches[b.Name] = true
	}
	for _, b := range f.Books {
		if b.ISBN == "" || b.Title == "" {
			return fmt.Errorf("book %q: isbn and title are required", b.ISBN)
		}
		for name, n := range b.Copies {
			if !branches[name] {
				return fmt.Errorf("book %s: unknown branch %q", b.ISBN, name)
			}
			if n < 0 {
				return fmt.Errorf("book %s: negative copies at %q", b.ISBN, name)
			}
		}
	}
	for _, b := range f.Borrowers {
		if b.SSN == "" || b.FirstName == "" || b.LastName == "" || b.Address == "" {
			return fmt.Errorf("borrower %q: ssn, first_name, last_name and address are required", b.SSN)
		}
	}
	return nil
}

// CatalogWriter is the subset of the catalog repository used for seeding.
type CatalogWriter interface {
	SaveBranch(ctx context.Context, branch *entities.LibraryBranch) error
	SaveBook(ctx context.Context, book *entities.Book, authorNames []string) error
	SetCopies(ctx context.Context, isbn string, branchID uint, available int) (*entities.BookCopy, error)
}

// BorrowerWriter is the subset of the borrower repository used for seeding.
type BorrowerWriter interface {
	Create(ctx context.Context, b *entities.Borrower) error
}

// Result counts what Apply wrote.
type Result struct {
	Branches          int
	Books             int
	Copies            int
	Borrowers         int
	BorrowersExisting int
}

// Apply writes the fixtures. It is safe to run repeatedly: branches and
// books are upserted, copies are overwritten and borrowers whose SSN is
// already registered are skipped.
func (f *Fixtures) Apply(ctx context.Context, catalog CatalogWriter, people BorrowerWriter) (Result, error) {
	var res Result
	branchIDs := make(map[string]uint, len(f.Branches))

	for _, b := range f.Branches {
		branch := entities.LibraryBranch{Name: b.Name, Address: b.Address}
		if err := catalog.SaveBranch(ctx, &branch); err != nil {
			return res, fmt.Errorf("saving branch %q: %w", b.Name, err)
		}
		branchIDs[b.Name] = branch.ID
		res.Branches++
	}

	for _, b := range f.Books {
		book := entities.Book{ISBN: b.ISBN, Title: b.Title, CoverURL: b.CoverURL}
		if err := catalog.SaveBook(ctx, &book, b.Authors); err != nil {
			return res, fmt.Errorf("saving book %s: %w", b.ISBN, err)
		}
		res.Books++
		for name, n := range b.Copies {
			if _, err := catalog.SetCopies(ctx, b.ISBN, branchIDs[name], n); err != nil {
				return res, fmt.Errorf("setting copies of %s at %q: %w", b.ISBN, name, err)
			}
			res.Copies++
		}
	}

	for _, b := range f.Borrowers {
		borrower := entities.Borrower{
			SSN:       b.SSN,
			FirstName: b.FirstName,
			LastName:  b.LastName,
			Address:   b.Address,
			Phone:     optional(b.Phone),
			Email:     optional(b.Email),
		}
		err := people.Create(ctx, &borrower)
		switch {
		case errors.Is(err, borrowers.ErrDuplicateSSN):
			res.BorrowersExisting++
		case err != nil:
			return res, fmt.Errorf("creating borrower %s %s: %w", b.FirstName, b.LastName, err)
		default:
			res.Borrowers++
		}
	}
	return res, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
