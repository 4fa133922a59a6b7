// Package catalog provides database operations for books, authors, branches
// and the per-branch copy inventory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librapp/internal/entities"
)

var (
	ErrUnknownBook   = errors.New("book not found")
	ErrUnknownBranch = errors.New("branch not found")
)

// DefaultSearchLimit caps the number of books a search returns.
const DefaultSearchLimit = 50

// SearchResult is one matching book together with its copies, optionally
// restricted to a single branch.
type SearchResult struct {
	entities.Book
	Availability []entities.BookCopy `json:"availability"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Search matches query against the ISBN exactly and, when no book has that
// ISBN, against titles and author names case-insensitively. A non-zero
// branchID limits the availability listing to that branch.
func (r *Repository) Search(ctx context.Context, query string, branchID uint, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	db := r.db.WithContext(ctx)

	var books []entities.Book
	if err := db.Preload("Authors").Where("isbn = ?", query).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to search by isbn: %w", err)
	}

	if len(books) == 0 {
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		byAuthor := db.Table("book_authors").
			Select("book_authors.book_isbn").
			Joins("JOIN authors ON authors.id = book_authors.author_id").
			Where(`LOWER(authors.name) LIKE ? ESCAPE '\'`, pattern)

		err := db.Preload("Authors", func(q *gorm.DB) *gorm.DB { return q.Order("authors.name") }).
			Where(`LOWER(title) LIKE ? ESCAPE '\'`, pattern).
			Or("isbn IN (?)", byAuthor).
			Order("title").
			Limit(limit).
			Find(&books).Error
		if err != nil {
			return nil, fmt.Errorf("failed to search catalog: %w", err)
		}
	}
	if len(books) == 0 {
		return []SearchResult{}, nil
	}

	isbns := make([]string, len(books))
	for i, b := range books {
		isbns[i] = b.ISBN
	}
	q := db.Preload("Branch").Where("book_isbn IN ?", isbns)
	if branchID != 0 {
		q = q.Where("branch_id = ?", branchID)
	}
	var copies []entities.BookCopy
	if err := q.Order("branch_id").Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}

	byISBN := make(map[string][]entities.BookCopy, len(books))
	for _, c := range copies {
		byISBN[c.BookISBN] = append(byISBN[c.BookISBN], c)
	}
	results := make([]SearchResult, len(books))
	for i, b := range books {
		avail := byISBN[b.ISBN]
		if avail == nil {
			avail = []entities.BookCopy{}
		}
		results[i] = SearchResult{Book: b, Availability: avail}
	}
	return results, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetBook returns the book with its authors, or nil if absent.
func (r *Repository) GetBook(ctx context.Context, isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Preload("Authors").Where("isbn = ?", isbn).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// SaveBook inserts or updates a book and replaces its author list. Authors
// are matched by name and created on first use.
func (r *Repository) SaveBook(ctx context.Context, book *entities.Book, authorNames []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		authors := make([]entities.Author, 0, len(authorNames))
		for _, name := range authorNames {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			author := entities.Author{Name: name}
			if err := tx.Where(entities.Author{Name: name}).FirstOrCreate(&author).Error; err != nil {
				return fmt.Errorf("failed to save author %q: %w", name, err)
			}
			authors = append(authors, author)
		}

		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "isbn"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "cover_url", "updated_at"}),
		}).Create(book).Error
		if err != nil {
			return fmt.Errorf("failed to save book %s: %w", book.ISBN, err)
		}

		if err := tx.Model(book).Association("Authors").Replace(authors); err != nil {
			return fmt.Errorf("failed to link authors of %s: %w", book.ISBN, err)
		}
		book.Authors = authors
		return nil
	})
}

func (r *Repository) ListBranches(ctx context.Context) ([]entities.LibraryBranch, error) {
	var branches []entities.LibraryBranch
	if err := r.db.WithContext(ctx).Order("id").Find(&branches).Error; err != nil {
		return nil, err
	}
	return branches, nil
}

func (r *Repository) GetBranch(ctx context.Context, id uint) (*entities.LibraryBranch, error) {
	var branch entities.LibraryBranch
	err := r.db.WithContext(ctx).First(&branch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

// SaveBranch creates the branch or, when one with the same name exists,
// updates its address. branch.ID is set either way.
func (r *Repository) SaveBranch(ctx context.Context, branch *entities.LibraryBranch) error {
	db := r.db.WithContext(ctx)
	var existing entities.LibraryBranch
	err := db.Where("name = ?", branch.Name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(branch).Error
	case err != nil:
		return err
	}
	branch.ID = existing.ID
	branch.CreatedAt = existing.CreatedAt
	return db.Model(&existing).Update("address", branch.Address).Error
}

// SetCopies sets the number of units of a book on the shelf at a branch,
// creating the inventory record if needed.
func (r *Repository) SetCopies(ctx context.Context, isbn string, branchID uint, available int) (*entities.BookCopy, error) {
	if available < 0 {
		return nil, fmt.Errorf("copies available must not be negative, got %d", available)
	}
	var result *entities.BookCopy
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entities.Book{}).Where("isbn = ?", isbn).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUnknownBook
		}
		if err := tx.Model(&entities.LibraryBranch{}).Where("id = ?", branchID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUnknownBranch
		}

		c := entities.BookCopy{
			BookISBN:        isbn,
			BranchID:        branchID,
			CopiesAvailable: available,
			UpdatedAt:       time.Now().UTC(),
		}
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "book_isbn"}, {Name: "branch_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"copies_available", "updated_at"}),
		}).Create(&c).Error
		if err != nil {
			return err
		}

		var saved entities.BookCopy
		if err := tx.Where("book_isbn = ? AND branch_id = ?", isbn, branchID).First(&saved).Error; err != nil {
			return err
		}
		result = &saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Counts holds catalog totals for the health endpoint and seeding output.
type Counts struct {
	Books    int64 `json:"books"`
	Authors  int64 `json:"authors"`
	Branches int64 `json:"branches"`
	Copies   int64 `json:"copies"`
}

func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := r.db.WithContext(ctx)
	for _, item := range []struct {
		model any
		dst   *int64
	}{
		{&entities.Book{}, &c.Books},
		{&entities.Author{}, &c.Authors},
		{&entities.LibraryBranch{}, &c.Branches},
		{&entities.BookCopy{}, &c.Copies},
	} {
		if err := db.Model(item.model).Count(item.dst).Error; err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}
