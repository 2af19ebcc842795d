package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// recordBuilder coerces one row into a typed record.
type recordBuilder func(rowReader) (domain.Record, error)

var builders = map[domain.Dataset]recordBuilder{
	domain.DatasetProducts:    buildProduct,
	domain.DatasetPatents:     buildPatent,
	domain.DatasetExclusivity: buildExclusivity,
}

func buildProduct(row rowReader) (domain.Record, error) {
	applNo, err := padKey(row.get("Appl_No"), 6, "Appl_No")
	if err != nil {
		return nil, err
	}
	productNo, err := padKey(row.get("Product_No"), 3, "Product_No")
	if err != nil {
		return nil, err
	}

	approval, err := fdaDate(row.get("Approval_Date"))
	if err != nil {
		return nil, fmt.Errorf("Approval_Date: %w", err)
	}

	dosageForm, route := splitDFRoute(row.get("DF;Route"))

	status := strings.ToUpper(row.get("Type"))
	switch status {
	case "RX", "OTC", "DISCN":
	case "":
		return nil, fmt.Errorf("missing marketing status (Type)")
	default:
		return nil, fmt.Errorf("unknown marketing status %q", status)
	}

	return &domain.ProductRecord{
		ApplNo:       applNo,
		ProductNo:    productNo,
		ApplType:     strings.ToUpper(row.get("Appl_Type")),
		Ingredient:   row.get("Ingredient"),
		DosageForm:   dosageForm,
		Route:        route,
		TradeName:    row.get("Trade_Name"),
		Applicant:    row.get("Applicant"),
		Strength:     row.get("Strength"),
		TECode:       row.get("TE_Code"),
		ApprovalDate: approval,
		RLD:          yesNo(row.get("RLD")),
		RS:           yesNo(row.get("RS")),
		MarketStatus: status,
	}, nil
}

func buildPatent(row rowReader) (domain.Record, error) {
	applNo, err := padKey(row.get("Appl_No"), 6, "Appl_No")
	if err != nil {
		return nil, err
	}
	productNo, err := padKey(row.get("Product_No"), 3, "Product_No")
	if err != nil {
		return nil, err
	}
	patentNo := row.get("Patent_No")
	if patentNo == "" {
		return nil, fmt.Errorf("missing key field Patent_No")
	}

	expire, err := fdaDate(row.get("Patent_Expire_Date_Text"))
	if err != nil {
		return nil, fmt.Errorf("Patent_Expire_Date_Text: %w", err)
	}
	submitted, err := fdaDate(row.get("Submission_Date"))
	if err != nil {
		return nil, fmt.Errorf("Submission_Date: %w", err)
	}

	return &domain.PatentRecord{
		ApplNo:         applNo,
		ProductNo:      productNo,
		ApplType:       strings.ToUpper(row.get("Appl_Type")),
		PatentNo:       patentNo,
		ExpireDate:     expire,
		DrugSubstance:  flag(row.get("Drug_Substance_Flag")),
		DrugProduct:    flag(row.get("Drug_Product_Flag")),
		UseCode:        row.get("Patent_Use_Code"),
		Delisted:       flag(row.get("Delist_Flag")),
		SubmissionDate: submitted,
	}, nil
}

func buildExclusivity(row rowReader) (domain.Record, error) {
	applNo, err := padKey(row.get("Appl_No"), 6, "Appl_No")
	if err != nil {
		return nil, err
	}
	productNo, err := padKey(row.get("Product_No"), 3, "Product_No")
	if err != nil {
		return nil, err
	}
	code := row.get("Exclusivity_Code")
	if code == "" {
		return nil, fmt.Errorf("missing key field Exclusivity_Code")
	}

	end, err := fdaDate(row.get("Exclusivity_Date"))
	if err != nil {
		return nil, fmt.Errorf("Exclusivity_Date: %w", err)
	}

	return &domain.ExclusivityRecord{
		ApplNo:    applNo,
		ProductNo: productNo,
		ApplType:  strings.ToUpper(row.get("Appl_Type")),
		Code:      code,
		EndDate:   end,
	}, nil
}

// fdaDateLayout matches the Orange Book's text dates, e.g. "Jan 1, 1982".
const fdaDateLayout = "Jan 2, 2006"

// fdaDate parses an optional FDA text date. Empty values and the
// "Approved Prior to Jan 1, 1982" sentinel both mean no date.
func fdaDate(s string) (*time.Time, error) {
	if s == "" || strings.Contains(strings.ToLower(s), "approved prior to") {
		return nil, nil
	}
	t, err := time.Parse(fdaDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("unparseable date %q", s)
	}
	return &t, nil
}

// padKey left-pads a numeric key field with zeros. An empty value is a
// missing key field, which rejects the row.
func padKey(s string, width int, column string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing key field %s", column)
	}
	if len(s) >= width {
		return s, nil
	}
	return strings.Repeat("0", width-len(s)) + s, nil
}

// flag parses the Y/blank patent flags.
func flag(s string) bool {
	return strings.EqualFold(s, "Y")
}

// yesNo parses the Yes/No product flags (RLD, RS). Anything other than an
// explicit Yes is false, matching the source's convention.
func yesNo(s string) bool {
	return strings.EqualFold(s, "Yes")
}

// splitDFRoute splits the combined "DF;Route" column, e.g.
// "TABLET;ORAL" into dosage form and route.
func splitDFRoute(s string) (dosageForm, route string) {
	parts := strings.SplitN(s, ";", 2)
	dosageForm = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		route = strings.TrimSpace(parts[1])
	}
	return dosageForm, route
}
