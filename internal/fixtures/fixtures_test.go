package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/database/borrowers"
	"github.com/mrlokans/librapp/internal/database/catalog"
	"github.com/mrlokans/librapp/internal/entities"
)

const sample = `
branches:
  - name: Central
    address: 1 Main St
  - name: East
    address: 40 East Ave
books:
  - isbn: "0262033844"
    title: Introduction to Algorithms
    authors: [Thomas H. Cormen, Charles E. Leiserson]
    copies:
      Central: 2
      East: 1
  - isbn: "0201896834"
    title: The Art of Computer Programming
    authors: [Donald Knuth]
    copies:
      Central: 0
borrowers:
  - ssn: "123456789"
    first_name: Ada
    last_name: Lovelace
    address: 12 St James's Square
    email: ada@example.com
  - ssn: "987654321"
    first_name: Alan
    last_name: Turing
    address: Wilmslow
`

func setupRepos(t *testing.T) (*gorm.DB, *catalog.Repository, *borrowers.Repository) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "fixtures.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.LibraryBranch{},
		&entities.Author{},
		&entities.Book{},
		&entities.BookCopy{},
		&entities.Borrower{},
	))
	return db, catalog.NewRepository(db), borrowers.NewRepository(db)
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Len(t, f.Branches, 2)
	require.Len(t, f.Books, 2)
	assert.Equal(t, "0262033844", f.Books[0].ISBN)
	assert.Equal(t, []string{"Thomas H. Cormen", "Charles E. Leiserson"}, f.Books[0].Authors)
	assert.Equal(t, map[string]int{"Central": 2, "East": 1}, f.Books[0].Copies)
	require.Len(t, f.Borrowers, 2)
	assert.Equal(t, "ada@example.com", f.Borrowers[0].Email)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "branches: [name: ["},
		{"branch without name", "branches:\n  - address: nowhere\n"},
		{"book without title", "books:\n  - isbn: \"1\"\n"},
		{"unknown branch", "books:\n  - isbn: \"1\"\n    title: T\n    copies:\n      West: 1\n"},
		{"negative copies", "branches:\n  - name: Central\nbooks:\n  - isbn: \"1\"\n    title: T\n    copies:\n      Central: -1\n"},
		{"borrower missing address", "borrowers:\n  - ssn: \"123456789\"\n    first_name: A\n    last_name: B\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Books, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	db, cat, people := setupRepos(t)
	ctx := context.Background()

	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	res, err := f.Apply(ctx, cat, people)
	require.NoError(t, err)
	assert.Equal(t, Result{Branches: 2, Books: 2, Copies: 3, Borrowers: 2}, res)

	results, err := cat.Search(ctx, "algorithms", 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Authors, 2)
	assert.Len(t, results[0].Availability, 2)

	ada, err := people.GetBySSN(ctx, "123456789")
	require.NoError(t, err)
	require.NotNil(t, ada)
	require.NotNil(t, ada.Email)
	assert.Nil(t, ada.Phone)

	// Second run upserts the catalog and skips known borrowers
	res, err = f.Apply(ctx, cat, people)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Borrowers)
	assert.Equal(t, 2, res.BorrowersExisting)

	counts, err := cat.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Branches)
	assert.Equal(t, int64(2), counts.Books)
	assert.Equal(t, int64(3), counts.Authors)
	assert.Equal(t, int64(3), counts.Copies)

	var n int64
	require.NoError(t, db.Model(&entities.Borrower{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}
