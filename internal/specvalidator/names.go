package specvalidator

import "regexp"

var (
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	tableName  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// ValidIdentifier reports whether s is safe to splice into SQL as a column,
// alias or type name.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// ValidTableName accepts an identifier optionally qualified by a schema.
func ValidTableName(s string) bool {
	return tableName.MatchString(s)
}
