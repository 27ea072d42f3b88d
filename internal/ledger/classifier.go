package ledger

import "strings"

// Default chart-of-accounts codes treated as receivable and payable.
var (
	DefaultReceivableCodes = []string{"1170", "1180"}
	DefaultPayableCodes    = []string{"2170", "2180"}
)

// AccountClassifier decides whether an account is a receivable or payable
// control account by its own, parent or root code.
type AccountClassifier struct {
	receivable map[string]struct{}
	payable    map[string]struct{}
}

// NewAccountClassifier builds a classifier from code lists. Blank codes are ignored.
func NewAccountClassifier(receivable, payable []string) AccountClassifier {
	return AccountClassifier{receivable: codeSet(receivable), payable: codeSet(payable)}
}

// DefaultAccountClassifier uses DefaultReceivableCodes and DefaultPayableCodes.
func DefaultAccountClassifier() AccountClassifier {
	return NewAccountClassifier(DefaultReceivableCodes, DefaultPayableCodes)
}

// IsReceivable reports whether account rolls up to a receivable code.
func (c AccountClassifier) IsReceivable(account Account) bool {
	return matches(c.receivable, account)
}

// IsPayable reports whether account rolls up to a payable code.
func (c AccountClassifier) IsPayable(account Account) bool {
	return matches(c.payable, account)
}

func matches(set map[string]struct{}, account Account) bool {
	for _, code := range []string{account.Code, account.ParentCode, account.RootCode} {
		if code == "" {
			continue
		}
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}

func codeSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}
