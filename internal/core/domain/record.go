package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fdaNamespace is the name-based UUID namespace for source identifiers,
// derived from the DNS namespace the same way across releases so surrogate
// IDs stay stable.
var fdaNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("fda.gov"))

// SurrogateID derives a stable, name-based UUID for a natural key.
func SurrogateID(naturalKey string) string {
	return uuid.NewSHA1(fdaNamespace, []byte(naturalKey)).String()
}

// Record is one parsed logical row. Each dataset has its own typed variant;
// they share only the identity and change-detection contract.
type Record interface {
	// Dataset names the variant's source file.
	Dataset() Dataset

	// NaturalKey is the stable composite of the identifying fields,
	// unique within a parsed batch and across releases.
	NaturalKey() string

	// ContentHash covers every non-key field and changes iff the
	// entity's data changed between releases.
	ContentHash() string
}

// hashFields produces the content hash for a record's non-key fields.
// Values are joined with an unambiguous separator so field boundaries
// cannot alias ("ab","c" never hashes like "a","bc").
func hashFields(values ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// dateField normalizes an optional date for hashing.
func dateField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// boolField normalizes a flag for hashing.
func boolField(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

const keySep = "|"

// ProductRecord is one row of products.txt. Identity is the application and
// product number pair; marketing status and everything else are content.
type ProductRecord struct {
	ApplNo       string // zero-padded to 6
	ProductNo    string // zero-padded to 3
	ApplType     string // N or A (NDA / ANDA)
	Ingredient   string
	DosageForm   string
	Route        string
	TradeName    string
	Applicant    string
	Strength     string
	TECode       string
	ApprovalDate *time.Time // nil for "Approved prior to ..." entries
	RLD          bool
	RS           bool
	MarketStatus string // RX, OTC, or DISCN
}

func (r *ProductRecord) Dataset() Dataset { return DatasetProducts }

func (r *ProductRecord) NaturalKey() string {
	return r.ApplNo + keySep + r.ProductNo
}

func (r *ProductRecord) ContentHash() string {
	return hashFields(
		r.ApplType, r.Ingredient, r.DosageForm, r.Route, r.TradeName,
		r.Applicant, r.Strength, r.TECode, dateField(r.ApprovalDate),
		boolField(r.RLD), boolField(r.RS), r.MarketStatus,
	)
}

// SurrogateID is the stable UUID carried into the destination table.
func (r *ProductRecord) SurrogateID() string {
	return SurrogateID(string(DatasetProducts) + keySep + r.NaturalKey())
}

// PatentRecord is one row of patent.txt.
type PatentRecord struct {
	ApplNo         string
	ProductNo      string
	ApplType       string
	PatentNo       string
	ExpireDate     *time.Time
	DrugSubstance  bool
	DrugProduct    bool
	UseCode        string
	Delisted       bool
	SubmissionDate *time.Time
}

func (r *PatentRecord) Dataset() Dataset { return DatasetPatents }

func (r *PatentRecord) NaturalKey() string {
	return r.ApplNo + keySep + r.ProductNo + keySep + r.PatentNo
}

func (r *PatentRecord) ContentHash() string {
	return hashFields(
		r.ApplType, dateField(r.ExpireDate), boolField(r.DrugSubstance),
		boolField(r.DrugProduct), r.UseCode, boolField(r.Delisted),
		dateField(r.SubmissionDate),
	)
}

// ExclusivityRecord is one row of exclusivity.txt.
type ExclusivityRecord struct {
	ApplNo    string
	ProductNo string
	ApplType  string
	Code      string
	EndDate   *time.Time
}

func (r *ExclusivityRecord) Dataset() Dataset { return DatasetExclusivity }

func (r *ExclusivityRecord) NaturalKey() string {
	return r.ApplNo + keySep + r.ProductNo + keySep + r.Code
}

func (r *ExclusivityRecord) ContentHash() string {
	return hashFields(r.ApplType, dateField(r.EndDate))
}

// Rejection is a row the parser could not turn into a Record. It is recorded
// and excluded from the batch; the raw line is kept for audit.
type Rejection struct {
	Dataset Dataset
	Line    int
	Reason  string
	Raw     string
}
