package emailaddress

import "regexp"

var emailPattern = regexp.MustCompile(`^[_A-Za-z0-9-\+]+(\.[_A-Za-z0-9-]+)*@[A-Za-z0-9-]+(\.[A-Za-z0-9]+)*(\.[A-Za-z]{2,})$`)

// ValidAddress reports whether addr is structurally a valid email address.
func ValidAddress(addr string) bool {
	return emailPattern.MatchString(addr)
}
