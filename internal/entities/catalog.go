package entities

import "time"

type Book struct {
	ISBN      string    `gorm:"primaryKey;size:13" json:"isbn" yaml:"isbn"`
	Title     string    `gorm:"index;size:512;not null" json:"title" yaml:"title"`
	CoverURL  string    `gorm:"size:2048" json:"cover_url,omitempty" yaml:"cover_url"`
	Authors   []Author  `gorm:"many2many:book_authors;joinForeignKey:BookISBN;joinReferences:AuthorID" json:"authors,omitempty" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

type Author struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:256;not null" json:"name"`
}

type LibraryBranch struct {
	ID        uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	Name      string    `gorm:"uniqueIndex;size:256;not null" json:"name" yaml:"name"`
	Address   string    `gorm:"size:512" json:"address" yaml:"address"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// BookCopy is the inventory record for one book at one branch.
// CopiesAvailable counts units currently on the shelf.
type BookCopy struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	BookISBN        string        `gorm:"uniqueIndex:idx_copy_book_branch;size:13;not null" json:"isbn"`
	Book            Book          `gorm:"foreignKey:BookISBN;references:ISBN" json:"book,omitempty"`
	BranchID        uint          `gorm:"uniqueIndex:idx_copy_book_branch;not null" json:"branch_id"`
	Branch          LibraryBranch `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	CopiesAvailable int           `gorm:"not null;default:0;check:chk_copies_available,copies_available >= 0" json:"copies_available"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Borrower struct {
	CardNo    uint      `gorm:"primaryKey;autoIncrement" json:"card_no"`
	SSN       string    `gorm:"uniqueIndex;size:9;not null" json:"ssn"`
	FirstName string    `gorm:"size:128;not null" json:"first_name"`
	LastName  string    `gorm:"size:128;not null" json:"last_name"`
	Address   string    `gorm:"size:512;not null" json:"address"`
	Phone     *string   `gorm:"size:32" json:"phone,omitempty"`
	Email     *string   `gorm:"size:255" json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (b Borrower) FullName() string {
	return b.FirstName + " " + b.LastName
}
