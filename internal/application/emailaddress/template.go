package emailaddress

import "strings"

// render fills the token placeholders of a verification mail template.
// Both the bare and the braced placeholder forms are accepted.
func render(tmpl, acceptToken, rejectToken string) string {
	return strings.NewReplacer(
		"${acceptToken}", acceptToken,
		"${rejectToken}", rejectToken,
		"$acceptToken", acceptToken,
		"$rejectToken", rejectToken,
	).Replace(tmpl)
}
