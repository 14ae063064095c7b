// Package category holds the fixed category taxonomy and the keyword
// classifier that maps merchant and description text onto it.
package category

// Other is present in both the expense and income taxonomies
const Other = "Other"

// Expense categories
const (
	FoodDining     = "Food & Dining"
	Transportation = "Transportation"
	Shopping       = "Shopping"
	Entertainment  = "Entertainment"
	BillsUtilities = "Bills & Utilities"
	HealthFitness  = "Health & Fitness"
	Travel         = "Travel"
	Education      = "Education"
	PersonalCare   = "Personal Care"
)

// Income categories
const (
	Salary     = "Salary"
	Freelance  = "Freelance"
	Investment = "Investment"
	Business   = "Business"
	Gift       = "Gift"
)

var expenseCategories = []string{
	FoodDining,
	Transportation,
	Shopping,
	Entertainment,
	BillsUtilities,
	HealthFitness,
	Travel,
	Education,
	PersonalCare,
	Other,
}

var incomeCategories = []string{
	Salary,
	Freelance,
	Investment,
	Business,
	Gift,
	Other,
}

// ExpenseCategories returns a copy of the fixed expense taxonomy
func ExpenseCategories() []string {
	return append([]string(nil), expenseCategories...)
}

// IncomeCategories returns a copy of the fixed income taxonomy
func IncomeCategories() []string {
	return append([]string(nil), incomeCategories...)
}

// IsExpense reports whether name is a fixed expense category
func IsExpense(name string) bool {
	return contains(expenseCategories, name)
}

// IsIncome reports whether name is a fixed income category
func IsIncome(name string) bool {
	return contains(incomeCategories, name)
}

func contains(list []string, name string) bool {
	for _, c := range list {
		if c == name {
			return true
		}
	}
	return false
}
